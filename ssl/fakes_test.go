package ssl

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"sslcat/internal/tlstest"
)

// ── pipeTransport ────────────────────────────────────────────────────

// pipeTransport is a non-blocking Transport over one end of net.Pipe.
// A pump goroutine buffers inbound bytes; writes go straight through,
// capped at maxWrite bytes.  With blockEvery > 0 every blockEvery-th
// Read and Write call reports ErrWouldBlock first.
type pipeTransport struct {
	conn       net.Conn
	blockEvery int
	maxWrite   int

	mu     sync.Mutex
	buf    bytes.Buffer
	rerr   error
	calls  int
	closed bool
	awaits []Interest
	notify chan struct{}

	afterClose atomic.Int32
}

func newPipeTransport(conn net.Conn, blockEvery, maxWrite int) *pipeTransport {
	t := &pipeTransport{conn: conn, blockEvery: blockEvery, maxWrite: maxWrite, notify: make(chan struct{}, 1)}
	go t.pump()
	return t
}

func (t *pipeTransport) pump() {
	b := make([]byte, 8192)
	for {
		n, err := t.conn.Read(b)
		t.mu.Lock()
		t.buf.Write(b[:n])
		if err != nil {
			t.rerr = err
		}
		t.mu.Unlock()
		select {
		case t.notify <- struct{}{}:
		default:
		}
		if err != nil {
			return
		}
	}
}

func (t *pipeTransport) injectBlock() bool {
	if t.blockEvery <= 0 {
		return false
	}
	t.calls++
	return t.calls%t.blockEvery == 0
}

func (t *pipeTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.afterClose.Add(1)
		return 0, net.ErrClosed
	}
	if t.injectBlock() {
		return 0, ErrWouldBlock
	}
	if t.buf.Len() > 0 {
		return t.buf.Read(p)
	}
	if t.rerr != nil {
		return 0, t.rerr
	}
	return 0, ErrWouldBlock
}

func (t *pipeTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.afterClose.Add(1)
		return 0, net.ErrClosed
	}
	block := t.injectBlock()
	t.mu.Unlock()
	if block {
		return 0, ErrWouldBlock
	}
	if t.maxWrite > 0 && len(p) > t.maxWrite {
		p = p[:t.maxWrite]
	}
	return t.conn.Write(p)
}

func (t *pipeTransport) Await(ctx context.Context, interest Interest) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.afterClose.Add(1)
		return net.ErrClosed
	}
	t.awaits = append(t.awaits, interest)
	t.mu.Unlock()
	if interest == Writable {
		return ctx.Err()
	}
	for {
		t.mu.Lock()
		ready := t.buf.Len() > 0 || t.rerr != nil
		t.mu.Unlock()
		if ready {
			return nil
		}
		select {
		case <-t.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *pipeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

func (t *pipeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *pipeTransport) awaitCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.awaits)
}

// pipeServer runs h behind a TLS server on the far end of a pipe and
// returns the client transport and the CA that signed the server's
// certificate for names.
func pipeServer(tb testing.TB, h tlstest.Handler, blockEvery, maxWrite int, names ...string) (*pipeTransport, *tlstest.CA) {
	tb.Helper()
	if len(names) == 0 {
		names = []string{"example"}
	}
	ca, err := tlstest.NewCA()
	if err != nil {
		tb.Fatal(err)
	}
	cfg, err := ca.ServerConfig(names...)
	if err != nil {
		tb.Fatal(err)
	}
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv := tls.Server(server, cfg)
		defer srv.Close()
		if err := srv.Handshake(); err != nil {
			return
		}
		if h != nil {
			h(srv)
		}
	}()
	t := newPipeTransport(client, blockEvery, maxWrite)
	tb.Cleanup(func() {
		t.Close()
		server.Close()
		<-done
	})
	return t, ca
}

// ── stallTransport ───────────────────────────────────────────────────

// stallTransport accepts every write and never has anything to read.
// Await(Readable) parks until ctx is done.
type stallTransport struct {
	mu      sync.Mutex
	written int
	closed  bool

	afterClose atomic.Int32
	parked     chan struct{}
	parkOnce   sync.Once
}

func newStallTransport() *stallTransport { return &stallTransport{parked: make(chan struct{})} }

func (t *stallTransport) touch() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.afterClose.Add(1)
		return false
	}
	return true
}

func (t *stallTransport) Read([]byte) (int, error) {
	if !t.touch() {
		return 0, net.ErrClosed
	}
	return 0, ErrWouldBlock
}

func (t *stallTransport) Write(p []byte) (int, error) {
	if !t.touch() {
		return 0, net.ErrClosed
	}
	t.mu.Lock()
	t.written += len(p)
	t.mu.Unlock()
	return len(p), nil
}

func (t *stallTransport) Await(ctx context.Context, interest Interest) error {
	if !t.touch() {
		return net.ErrClosed
	}
	if interest == Writable {
		return nil
	}
	t.parkOnce.Do(func() { close(t.parked) })
	<-ctx.Done()
	return ctx.Err()
}

func (t *stallTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *stallTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// ── readyTransport ───────────────────────────────────────────────────

// readyTransport is always ready and records what it was awaited for.
type readyTransport struct {
	awaits []Interest
	closed bool
}

func (t *readyTransport) Read([]byte) (int, error)    { return 0, io.EOF }
func (t *readyTransport) Write(p []byte) (int, error) { return len(p), nil }
func (t *readyTransport) Close() error                { t.closed = true; return nil }
func (t *readyTransport) Await(_ context.Context, i Interest) error {
	t.awaits = append(t.awaits, i)
	return nil
}

// ── scriptBackend ────────────────────────────────────────────────────

// scriptBackend replays a fixed sequence of step results and then
// returns err (or StepComplete when err is nil).
type scriptBackend struct {
	steps   []StepResult
	err     error
	initErr error
}

func (b *scriptBackend) Name() string { return "script" }
func (b *scriptBackend) Rules() Rules { return newTable() }
func (b *scriptBackend) NewSession(*SessionConfig) (Session, error) {
	if b.initErr != nil {
		return nil, b.initErr
	}
	return &scriptSession{steps: append([]StepResult(nil), b.steps...), err: b.err}, nil
}

type scriptSession struct {
	steps  []StepResult
	err    error
	closed bool
}

func (s *scriptSession) Step(Transport) (StepResult, error) {
	if len(s.steps) > 0 {
		r := s.steps[0]
		s.steps = s.steps[1:]
		return r, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	return StepComplete, nil
}

func (s *scriptSession) Read(t Transport, p []byte) (int, error)  { return t.Read(p) }
func (s *scriptSession) Write(t Transport, p []byte) (int, error) { return t.Write(p) }
func (s *scriptSession) Flush(Transport) error                    { return nil }
func (s *scriptSession) CloseWrite(Transport) error               { return nil }
func (s *scriptSession) ConnectionState() ConnectionState         { return ConnectionState{} }
func (s *scriptSession) Close() error                             { s.closed = true; return nil }

// ── fakeStream ───────────────────────────────────────────────────────

// fakeStream is a scripted Stream for the pipeline stages.
type fakeStream struct {
	// writes
	written    []byte
	maxWrite   int  // bytes accepted per call, 0 = all
	blockWrite bool // alternate ErrWouldBlock with progress
	writeErr   error
	failAfter  int // fail once this many bytes were written, 0 = never
	writeCalls int

	// flush
	flushBlocks int

	// reads: a nil chunk means ErrWouldBlock
	chunks  [][]byte
	readErr error // returned after chunks; io.EOF when nil

	awaits   []Interest
	awaitErr error
	toggle   bool
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.writeCalls++
	if s.blockWrite {
		s.toggle = !s.toggle
		if s.toggle {
			return 0, ErrWouldBlock
		}
	}
	if s.failAfter > 0 && len(s.written) >= s.failAfter {
		return 0, s.writeErr
	}
	n := len(p)
	if s.maxWrite > 0 && n > s.maxWrite {
		n = s.maxWrite
	}
	s.written = append(s.written, p[:n]...)
	return n, nil
}

func (s *fakeStream) Flush() error {
	if s.flushBlocks > 0 {
		s.flushBlocks--
		return ErrWouldBlock
	}
	return nil
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		if s.readErr != nil {
			return 0, s.readErr
		}
		return 0, io.EOF
	}
	c := s.chunks[0]
	if c == nil {
		s.chunks = s.chunks[1:]
		return 0, ErrWouldBlock
	}
	n := copy(p, c)
	if n == len(c) {
		s.chunks = s.chunks[1:]
	} else {
		s.chunks[0] = c[n:]
	}
	return n, nil
}

func (s *fakeStream) Await(_ context.Context, i Interest) error {
	s.awaits = append(s.awaits, i)
	return s.awaitErr
}
