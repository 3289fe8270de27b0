// Package tunnel reaches the TLS server through an SSH gateway.  The
// gateway forwards a TCP stream (direct-tcpip) and the TLS session runs
// end to end over it; the gateway never sees plaintext.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel through which TCP connections
// can be forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a TCP stream to address through the tunnel.
	Dial(ctx context.Context, address string) (net.Conn, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
