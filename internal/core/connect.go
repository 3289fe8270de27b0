package core

import (
	"context"
	"io"
	"os"
	"time"

	"sslcat/internal/capability"
	ncerr "sslcat/internal/errors"
	"sslcat/internal/metrics"
	"sslcat/internal/retry"
	"sslcat/internal/session"
	"sslcat/internal/transport"
	"sslcat/ssl"
	"sslcat/util"
)

// ConnectMode dials, completes the handshake and hands the decrypted
// connection to a capability: the default interactive mode.
type ConnectMode struct {
	Dialer     transport.Dialer
	Capability capability.Capability
	Address    string
	Hostname   string
	Options    []ssl.Option
	Backoff    *retry.Backoff // retries cover dial and handshake only
	Timeout    time.Duration
	Metrics    *metrics.Collector
	Logger     *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run establishes the TLS session and runs the capability on it.  The
// connection is closed, with close_notify, when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()
	ctx, cancel := withTimeout(ctx, m.Timeout)
	defer cancel()

	var stream *ssl.SecureStream
	err := withRetries(ctx, m.Backoff, func(n int) error {
		var err error
		stream, err = m.connect(ctx, n)
		if err != nil {
			m.Metrics.RecordError(err.Error())
		}
		return err
	})
	if err != nil {
		return timeoutError(ctx, m.Timeout, err)
	}
	m.Metrics.ConnectionOpened()
	defer m.Metrics.ConnectionClosed()

	st := stream.ConnectionState()
	m.Logger.Verbose("connected to %s: %s %s via %s",
		m.Address, ssl.TLSVersionString(st.Version), ssl.TLSCipherSuiteString(st.CipherSuite), stream.Backend())
	if st.NegotiatedProtocol != "" {
		m.Logger.Verbose("ALPN: %s", st.NegotiatedProtocol)
	}

	conn := ssl.NewConn(ctx, stream)
	defer conn.Close()

	sess := session.New(conn, m.stdin(), m.stdout(), m.Logger)
	if err := m.Capability.Handle(ctx, sess); err != nil {
		return timeoutError(ctx, m.Timeout, err)
	}
	return nil
}

func (m *ConnectMode) connect(ctx context.Context, n int) (*ssl.SecureStream, error) {
	m.Logger.Verbose("connecting to %s (attempt %d)", m.Address, n)
	tr, err := m.Dialer.Dial(ctx, m.Address)
	if err != nil {
		return nil, err
	}
	s, err := ssl.ConnectSecure(ctx, tr, m.Hostname, m.Options...)
	if err != nil {
		return nil, ncerr.Wrap("tls", m.Address, err)
	}
	return s, nil
}
