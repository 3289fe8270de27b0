package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	ncerr "sslcat/internal/errors"
	"sslcat/internal/metrics"
	"sslcat/internal/retry"
	"sslcat/internal/transport"
	"sslcat/ssl"
	"sslcat/util"
)

// FetchMode sends one request over TLS and writes everything the peer
// returns, up to its close, to Stdout.
type FetchMode struct {
	Dialer   transport.Dialer
	Address  string // host:port dialled
	Hostname string // SNI and verification name
	Request  []byte
	Options  []ssl.Option
	Backoff  *retry.Backoff // nil: a single attempt
	Timeout  time.Duration  // whole-run deadline, 0 for none
	Metrics  *metrics.Collector
	Logger   *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *FetchMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run performs the exchange, retrying transient failures when a
// Backoff is set.  An empty response is an error.
func (m *FetchMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()
	ctx, cancel := withTimeout(ctx, m.Timeout)
	defer cancel()

	var resp []byte
	err := withRetries(ctx, m.Backoff, func(n int) error {
		var err error
		resp, err = m.fetch(ctx, n)
		if err != nil {
			m.Metrics.RecordError(err.Error())
		}
		return err
	})
	if err != nil {
		return timeoutError(ctx, m.Timeout, err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("%s: %w", m.Address, ncerr.ErrEmptyResponse)
	}

	m.Logger.Verbose("received %d bytes from %s", len(resp), m.Address)
	_, err = m.stdout().Write(resp)
	return err
}

func (m *FetchMode) fetch(ctx context.Context, n int) ([]byte, error) {
	m.Logger.Verbose("connecting to %s (attempt %d)", m.Address, n)
	tr, err := m.Dialer.Dial(ctx, m.Address)
	if err != nil {
		return nil, err
	}
	m.Metrics.ConnectionOpened()
	defer m.Metrics.ConnectionClosed()

	resp, err := ssl.Fetch(ctx, tr, m.Hostname, m.Request, m.Options...).Await(ctx)
	if err != nil {
		return nil, ncerr.Wrap("tls", m.Address, err)
	}
	return resp, nil
}

// ── shared by both modes ─────────────────────────────────────────────

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// timeoutError tags err with ErrTimeout when the run deadline expired.
func timeoutError(ctx context.Context, d time.Duration, err error) error {
	if d > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ncerr.ErrTimeout, d, err)
	}
	return err
}
