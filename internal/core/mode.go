// Package core is the orchestration layer.  It composes a dialer, the
// ssl library and a capability into a complete run, and provides the
// builder that selects the run from a Config.
//
// Layers (bottom → top):
//
//	transport  →  ssl  →  session/capability  →  core  →  cmd (CLI)
package core

import "context"

// Mode is one complete sslcat run: a single fetch, or an interactive
// TLS session.  Each mode owns its lifecycle from dial to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
