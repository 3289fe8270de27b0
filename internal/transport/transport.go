// Package transport opens the byte streams the TLS layer runs over.
// Dialers handle the "how" of reaching the server (direct TCP or an SSH
// gateway) and hand back a non-blocking ssl.Transport; what happens over
// the stream is the ssl package's job.
package transport

import (
	"context"

	"sslcat/ssl"
)

// Dialer opens outbound transports.  Implementations include a plain TCP
// dialer and an SSH-tunnelled dialer that routes traffic through an
// encrypted gateway.
type Dialer interface {
	// Dial connects to address ("host:port") and returns a transport in
	// non-blocking mode.  The caller owns the result.
	Dial(ctx context.Context, address string) (ssl.Transport, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
