// Package capability defines what happens over an established TLS
// connection.  Each Capability encapsulates a single behaviour (relay
// stdio, execute a program) and operates on a Session rather than a
// concrete connection type.
package capability

import (
	"context"

	"sslcat/internal/session"
)

// Capability handles a single connection.  Handle blocks until the
// connection is done or ctx is cancelled.
type Capability interface {
	Handle(ctx context.Context, sess *session.Session) error
}
