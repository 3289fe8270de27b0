package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sslcat/internal/capability"
	"sslcat/internal/metrics"
	"sslcat/internal/tlstest"
	"sslcat/internal/transport"
	"sslcat/ssl"
	"sslcat/util"
)

func newConnect(srv *tlstest.Server, in string, out *bytes.Buffer) *ConnectMode {
	return &ConnectMode{
		Dialer:     &transport.TCPDialer{Timeout: 2 * time.Second},
		Capability: &capability.Relay{},
		Address:    srv.Addr,
		Hostname:   "example",
		Options:    []ssl.Option{ssl.WithRootCAs(srv.CA.Pool)},
		Logger:     util.NewLogger(0),
		Stdin:      strings.NewReader(in),
		Stdout:     out,
	}
}

// TestConnectMode_Echo verifies end-to-end connect mode with Relay.
func TestConnectMode_Echo(t *testing.T) {
	srv := tlstest.NewServer(t, tlstest.Echo)
	out := &bytes.Buffer{}
	c := metrics.New()

	m := newConnect(srv, "hello over tls\n", out)
	m.Metrics = c
	m.Options = append(m.Options, ssl.WithObserver(c))

	require.NoError(t, m.Run(runCtx(t)))
	assert.Equal(t, "hello over tls\n", out.String())
	assert.Equal(t, int64(1), c.TotalConnections())
	assert.Zero(t, c.ActiveConnections())
	assert.Equal(t, int64(len("hello over tls\n")), c.TotalBytesOut())
}

// TestConnectMode_SendData verifies stdin reaches the server intact
// after the handshake.
func TestConnectMode_SendData(t *testing.T) {
	payload := strings.Repeat("0123456789abcdef", 8<<10)
	srv := tlstest.NewServer(t, tlstest.Digest(int64(len(payload))))
	out := &bytes.Buffer{}

	require.NoError(t, newConnect(srv, payload, out).Run(runCtx(t)))
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte(payload))), out.String())
}

func TestConnectMode_HostnameMismatch(t *testing.T) {
	srv := tlstest.NewServer(t, tlstest.Echo)
	m := newConnect(srv, "", &bytes.Buffer{})
	m.Hostname = "not-example"

	err := m.Run(runCtx(t))
	require.Error(t, err)
	assert.Equal(t, ssl.KindHostnameMismatch, ssl.KindOf(err))
}

func TestConnectMode_RetriesHandshakeDial(t *testing.T) {
	srv := tlstest.NewServer(t, tlstest.Echo)
	out := &bytes.Buffer{}
	d := &flakyDialer{fails: 1}

	m := newConnect(srv, "again", out)
	m.Dialer = d
	m.Backoff = fastBackoff(2)

	require.NoError(t, m.Run(runCtx(t)))
	assert.Equal(t, 2, d.calls)
	assert.Equal(t, "again", out.String())
}
