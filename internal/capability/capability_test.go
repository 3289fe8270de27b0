package capability

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sslcat/internal/session"
	"sslcat/internal/tlstest"
	"sslcat/internal/transport"
	"sslcat/ssl"
	"sslcat/util"
)

// dialTLS returns a blocking ssl.Conn to srv.
func dialTLS(t *testing.T, ctx context.Context, srv *tlstest.Server) *ssl.Conn {
	t.Helper()
	tr, err := (&transport.TCPDialer{Timeout: 2 * time.Second}).Dial(ctx, srv.Addr)
	require.NoError(t, err)

	s, err := ssl.ConnectSecure(ctx, tr, "example", ssl.WithRootCAs(srv.CA.Pool))
	require.NoError(t, err)
	return ssl.NewConn(ctx, s)
}

// TestRelay_BidirectionalCopy verifies Relay shuttles data through a
// TLS echo server via the session's I/O endpoints.
func TestRelay_BidirectionalCopy(t *testing.T) {
	srv := tlstest.NewServer(t, tlstest.Echo)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	input := bytes.NewBufferString("hello relay\n")
	output := &bytes.Buffer{}
	sess := session.New(dialTLS(t, ctx, srv), input, output, util.NewLogger(0))

	require.NoError(t, (&Relay{}).Handle(ctx, sess))
	assert.Equal(t, "hello relay\n", output.String())
	assert.NotZero(t, sess.State.Version)
}

func TestRelay_PlainConn(t *testing.T) {
	a, b := net.Pipe()
	go func() {
		defer b.Close()
		b.Write([]byte("from peer")) //nolint:errcheck
	}()

	output := &bytes.Buffer{}
	sess := session.New(a, bytes.NewReader(nil), output, util.NewLogger(0))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, (&Relay{}).Handle(ctx, sess))
	assert.Equal(t, "from peer", output.String())
	assert.Zero(t, sess.State.Version)
}

func TestExec_Command(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	a, b := net.Pipe()
	defer b.Close()

	got := make(chan string, 1)
	go func() {
		b.Write([]byte("ping\n")) //nolint:errcheck
		line, _ := bufio.NewReader(b).ReadString('\n')
		got <- line
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess := session.New(a, nil, io.Discard, util.NewLogger(0))
	require.NoError(t, (&Exec{Command: "read l; echo got:$l"}).Handle(ctx, sess))

	select {
	case line := <-got:
		assert.Equal(t, "got:ping\n", line)
	case <-time.After(5 * time.Second):
		t.Fatal("no output from child")
	}
}

func TestExec_NothingToRun(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	sess := session.New(a, nil, io.Discard, util.NewLogger(0))
	assert.Error(t, (&Exec{}).Handle(context.Background(), sess))
}
