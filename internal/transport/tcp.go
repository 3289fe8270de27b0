package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	ncerr "sslcat/internal/errors"
	"sslcat/ssl"
)

// TCPDialer establishes plain TCP connections, optionally binding to a
// specific source port.
type TCPDialer struct {
	Timeout   time.Duration
	LocalPort int // optional source-port binding (0 = ephemeral)
}

// Dial connects to address over TCP and switches the socket to
// non-blocking use.
func (d *TCPDialer) Dial(ctx context.Context, address string) (ssl.Transport, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	if d.LocalPort > 0 {
		a, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", d.LocalPort))
		if err != nil {
			return nil, fmt.Errorf("resolve local addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, ncerr.Wrap("dial", address, err)
	}
	t, err := newTCPTransport(conn.(*net.TCPConn))
	if err != nil {
		conn.Close()
		return nil, ncerr.Wrap("dial", address, err)
	}
	return t, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
