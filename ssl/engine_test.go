package ssl

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sslcat/internal/tlstest"
)

func TestMemBufferNonblockingRead(t *testing.T) {
	m := newMemBuffer()
	m.setNonblocking()

	_, err := m.Read(make([]byte, 8))
	require.ErrorIs(t, err, errEngineStarved)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())

	m.feed([]byte("abc"))
	buf := make([]byte, 8)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	m.closeInput(io.EOF)
	_, err = m.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemBufferInputErrorAfterData(t *testing.T) {
	m := newMemBuffer()
	m.feed([]byte("xy"))
	m.closeInput(io.ErrUnexpectedEOF)

	buf := make([]byte, 1)
	for _, want := range "xy" {
		n, err := m.Read(buf)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		assert.Equal(t, byte(want), buf[0])
	}
	_, err := m.Read(buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestMemBufferSettle(t *testing.T) {
	m := newMemBuffer()

	// A blocked reader with nothing to read settles the buffer.
	go func() {
		m.Write([]byte("hello")) //nolint:errcheck
		m.Read(make([]byte, 1))  //nolint:errcheck
	}()
	snap := m.settle(true)
	assert.False(t, snap.done)
	assert.Equal(t, 5, snap.pending)

	assert.Equal(t, []byte("hel"), m.peekOut(3))
	m.consumeOut(5)
	assert.Zero(t, m.outLen())

	m.Close()
	snap = m.settle(false)
	assert.False(t, snap.done)

	m.finish(errors.New("done"))
	snap = m.settle(false)
	assert.True(t, snap.done)
	assert.EqualError(t, snap.err, "done")
}

func TestMemBufferClosed(t *testing.T) {
	m := newMemBuffer()
	m.Close()
	_, err := m.Read(make([]byte, 1))
	assert.ErrorIs(t, err, net.ErrClosed)
	_, err = m.Write([]byte("x"))
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.Equal(t, "mem", m.LocalAddr().Network())
	assert.NoError(t, m.SetDeadline(time.Now()))
}

func TestStreamReadWouldBlock(t *testing.T) {
	tr, ca := pipeServer(t, tlstest.Echo, 0, 0)
	s, err := ConnectSecure(context.Background(), tr, "example", WithRootCAs(ca.Pool))
	require.NoError(t, err)
	defer s.Close()

	// Nothing was sent yet: the read must not block.
	_, err = s.Read(make([]byte, 16))
	require.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, WriteAll(context.Background(), s, []byte("ping")))
	require.NoError(t, Flush(context.Background(), s))

	var got []byte
	buf := make([]byte, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for len(got) < 4 {
		n, err := s.Read(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, ErrWouldBlock) {
			require.NoError(t, s.Await(ctx, Readable))
			continue
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "ping", string(got))
}

func TestStreamWriteBackpressure(t *testing.T) {
	b := &scriptBackend{}
	cc, err := NewClientContext("example", WithBackend(b))
	require.NoError(t, err)

	tr := &readyTransport{}
	s, err := cc.Handshake(context.Background(), tr)
	require.NoError(t, err)

	// Replace the scripted session with a real engine over a stalled
	// transport to exercise the high-water mark.
	eng := newEngine(nil, newMemBuffer(), nil)
	eng.complete = true
	eng.buf.out.Write(make([]byte, outHighWater))
	s.session = eng
	s.transport = &blockedTransport{}

	n, err := s.Write([]byte("more"))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.ErrorIs(t, s.Flush(), ErrWouldBlock)

	// Would-block does not poison the stream.
	assert.Nil(t, s.err)
}

func TestStreamPoisonedByFailure(t *testing.T) {
	cc, err := NewClientContext("example", WithBackend(&scriptBackend{}))
	require.NoError(t, err)
	tr := &brokenTransport{err: &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}}
	s, err := cc.Handshake(context.Background(), tr)
	require.NoError(t, err)

	_, err = s.Write([]byte("x"))
	require.ErrorIs(t, err, ErrBrokenPipe)
	calls := tr.calls

	_, err2 := s.Write([]byte("y"))
	assert.Same(t, err, err2)
	_, err3 := s.Read(make([]byte, 1))
	assert.Same(t, err, err3)
	assert.Equal(t, calls, tr.calls, "a failed stream does not touch the transport")

	require.NoError(t, s.Close())
	assert.True(t, tr.closed)
}

func TestStreamUseAfterClose(t *testing.T) {
	cc, err := NewClientContext("example", WithBackend(&scriptBackend{}))
	require.NoError(t, err)
	tr := &readyTransport{}
	s, err := cc.Handshake(context.Background(), tr)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, tr.closed)

	_, err = s.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrConnectionAborted)
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrConnectionAborted)
	assert.ErrorIs(t, s.Flush(), ErrConnectionAborted)
}

func TestStreamEOF(t *testing.T) {
	cc, err := NewClientContext("example", WithBackend(&scriptBackend{}))
	require.NoError(t, err)
	s, err := cc.Handshake(context.Background(), &readyTransport{})
	require.NoError(t, err)

	n, err := s.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err, "clean close is io.EOF, not an *Error")
	assert.Nil(t, s.err)
}

// blockedTransport never accepts a byte.
type blockedTransport struct{ readyTransport }

func (t *blockedTransport) Write([]byte) (int, error) { return 0, ErrWouldBlock }
func (t *blockedTransport) Read([]byte) (int, error)  { return 0, ErrWouldBlock }

// brokenTransport fails every read and write with err.
type brokenTransport struct {
	readyTransport
	err   error
	calls int
}

func (t *brokenTransport) Write([]byte) (int, error) { t.calls++; return 0, t.err }
func (t *brokenTransport) Read([]byte) (int, error)  { t.calls++; return 0, t.err }
