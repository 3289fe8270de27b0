package transport

import (
	"context"
	"fmt"
	"sync"

	"sslcat/ssl"
	"sslcat/tunnel"
	"sslcat/util"
)

// SSHDialer reaches the server through an SSH gateway.  The tunnel is
// connected lazily on the first Dial, reconnected if it has died, and
// torn down on Close.
type SSHDialer struct {
	tunnel *tunnel.SSHTunnel
	config *tunnel.SSHConfig
	logger *util.Logger

	mu        sync.Mutex
	connected bool
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  The tunnel is not connected until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		config: cfg,
		logger: logger,
	}
}

// connect establishes the SSH tunnel if not already connected.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.tunnel.IsAlive() {
		return nil
	}
	if d.connected {
		d.logger.Verbose("SSH tunnel to %s went away, reconnecting", d.config.Addr())
		d.tunnel.Close()
		d.connected = false
	}

	d.logger.Verbose("establishing SSH tunnel to %s@%s", d.config.User, d.config.Addr())
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}

	d.connected = true
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// Dial opens a forwarded stream to address, lazily establishing the
// tunnel on the first call.  The channel is adapted to the non-blocking
// contract with pump goroutines.
func (d *SSHDialer) Dial(ctx context.Context, address string) (ssl.Transport, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	conn, err := d.tunnel.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return NewConnTransport(conn), nil
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		d.connected = false
		return d.tunnel.Close()
	}
	return nil
}
