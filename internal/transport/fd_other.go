//go:build !unix

package transport

import (
	"net"

	"sslcat/ssl"
)

// Without raw descriptor access the socket goes through the pumped
// adapter.
func newTCPTransport(c *net.TCPConn) (ssl.Transport, error) {
	return NewConnTransport(c), nil
}
