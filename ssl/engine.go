package ssl

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// maxPlaintextChunk bounds how much plaintext one Write encrypts,
	// one maximum-size TLS record.
	maxPlaintextChunk = 16 << 10

	// outHighWater is the amount of buffered ciphertext above which
	// Write reports ErrWouldBlock instead of encrypting more.
	outHighWater = 64 << 10

	scratchSize = 32 << 10
)

// ── Memory buffer ────────────────────────────────────────────────────

// errEngineStarved is what the engine sees when it reads an empty buffer
// after the handshake.  crypto/tls and its forks keep their state intact
// on temporary net.Errors, so the read can simply be retried later.
var errEngineStarved net.Error = starvedError{}

var errHandshakeIncomplete = errors.New("ssl: handshake not complete")

type starvedError struct{}

func (starvedError) Error() string   { return "ssl: engine input exhausted" }
func (starvedError) Timeout() bool   { return true }
func (starvedError) Temporary() bool { return true }

// memBuffer is the in-memory net.Conn a TLS engine runs over.  The
// engine reads peer ciphertext from in and appends its own records to
// out; the session moves bytes between the buffers and the transport.
// During the handshake the engine runs on its own goroutine and Read
// blocks; afterwards Read fails fast with errEngineStarved.
type memBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	in    bytes.Buffer
	inErr error // delivered once in is drained
	out   bytes.Buffer

	nonblocking bool
	waiting     bool // engine is parked in Read with in empty
	closed      bool

	done    bool // handshake returned
	doneErr error
}

func newMemBuffer() *memBuffer {
	m := &memBuffer{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *memBuffer) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.in.Len() == 0 && m.inErr == nil && !m.closed {
		if m.nonblocking {
			return 0, errEngineStarved
		}
		m.waiting = true
		m.cond.Broadcast()
		m.cond.Wait()
		m.waiting = false
	}
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.in.Len() > 0 {
		return m.in.Read(p)
	}
	return 0, m.inErr
}

func (m *memBuffer) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	m.out.Write(p)
	m.cond.Broadcast()
	return len(p), nil
}

func (m *memBuffer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

func (m *memBuffer) LocalAddr() net.Addr              { return memAddr{} }
func (m *memBuffer) RemoteAddr() net.Addr             { return memAddr{} }
func (m *memBuffer) SetDeadline(time.Time) error      { return nil }
func (m *memBuffer) SetReadDeadline(time.Time) error  { return nil }
func (m *memBuffer) SetWriteDeadline(time.Time) error { return nil }

type memAddr struct{}

func (memAddr) Network() string { return "mem" }
func (memAddr) String() string  { return "mem" }

func (m *memBuffer) feed(p []byte) {
	m.mu.Lock()
	m.in.Write(p)
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *memBuffer) closeInput(err error) {
	m.mu.Lock()
	if m.inErr == nil {
		m.inErr = err
	}
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *memBuffer) finish(err error) {
	m.mu.Lock()
	m.done = true
	m.doneErr = err
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *memBuffer) setNonblocking() {
	m.mu.Lock()
	m.nonblocking = true
	m.mu.Unlock()
}

// peekOut copies up to max pending ciphertext bytes.
func (m *memBuffer) peekOut(max int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.out.Len()
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	return append([]byte(nil), m.out.Bytes()[:n]...)
}

func (m *memBuffer) consumeOut(n int) {
	m.mu.Lock()
	m.out.Next(n)
	m.mu.Unlock()
}

func (m *memBuffer) outLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.Len()
}

type engineSnapshot struct {
	pending int
	done    bool
	err     error
}

// settle waits until the handshake goroutine cannot make progress on its
// own: it has output for the transport, needs input, or has returned.
// When ignoreOut is set, pending output does not count as settled.
func (m *memBuffer) settle(ignoreOut bool) engineSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.done && !m.closed && !(m.waiting && m.in.Len() == 0 && m.inErr == nil) && (ignoreOut || m.out.Len() == 0) {
		m.cond.Wait()
	}
	return engineSnapshot{pending: m.out.Len(), done: m.done, err: m.doneErr}
}

// ── Engine session ───────────────────────────────────────────────────

// engine turns a blocking TLS engine into a Session.  Only the handshake
// runs on a separate goroutine, and that goroutine touches nothing but
// the memory buffer.
type engine struct {
	conn    engineConn
	buf     *memBuffer
	state   func(engineConn) ConnectionState
	scratch []byte

	started  bool
	complete bool
}

func newEngine(conn engineConn, buf *memBuffer, state func(engineConn) ConnectionState) *engine {
	return &engine{conn: conn, buf: buf, state: state, scratch: make([]byte, scratchSize)}
}

func (e *engine) run() {
	e.buf.finish(e.conn.Handshake())
}

// Step advances the handshake as far as the transport allows.
func (e *engine) Step(t Transport) (StepResult, error) {
	if e.complete {
		return StepComplete, nil
	}
	if !e.started {
		e.started = true
		go e.run()
	}
	for {
		if err := e.drain(t); err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return StepNeedsWrite, nil
			}
			// The engine may be failing at the same moment, e.g. sending
			// a bad_certificate alert; its verdict wins over the
			// transport's.
			if snap := e.buf.settle(true); snap.done && snap.err != nil {
				return 0, snap.err
			}
			e.buf.Close()
			return 0, err
		}

		snap := e.buf.settle(false)
		switch {
		case snap.done && snap.err != nil:
			e.drain(t) //nolint:errcheck // best-effort alert delivery
			return 0, snap.err
		case snap.pending > 0:
			continue
		case snap.done:
			e.buf.setNonblocking()
			e.complete = true
			return StepComplete, nil
		}

		n, err := e.fill(t)
		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, ErrWouldBlock):
			if n > 0 {
				continue
			}
			return StepNeedsRead, nil
		case errors.Is(err, io.EOF):
			e.buf.closeInput(io.ErrUnexpectedEOF)
		default:
			e.buf.Close()
			return 0, err
		}
	}
}

func (e *engine) Read(t Transport, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := e.conn.Read(p)
		if n > 0 {
			e.drain(t) //nolint:errcheck // post-handshake replies go out with the next write
			return n, nil
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, errEngineStarved) {
			return 0, err
		}
		m, ferr := e.fill(t)
		switch {
		case m > 0 && (ferr == nil || errors.Is(ferr, ErrWouldBlock)):
			continue
		case ferr == nil, errors.Is(ferr, ErrWouldBlock):
			return 0, ErrWouldBlock
		case errors.Is(ferr, io.EOF):
			e.buf.closeInput(io.EOF)
		default:
			return 0, ferr
		}
	}
}

func (e *engine) Write(t Transport, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := e.drain(t); err != nil && !errors.Is(err, ErrWouldBlock) {
		return 0, err
	}
	if e.buf.outLen() >= outHighWater {
		return 0, ErrWouldBlock
	}
	if len(p) > maxPlaintextChunk {
		p = p[:maxPlaintextChunk]
	}
	n, err := e.conn.Write(p)
	if err != nil {
		return n, err
	}
	if err := e.drain(t); err != nil && !errors.Is(err, ErrWouldBlock) {
		return n, err
	}
	return n, nil
}

func (e *engine) Flush(t Transport) error {
	return e.drain(t)
}

// CloseWrite queues close_notify and pushes it out.  Reads stay usable.
func (e *engine) CloseWrite(t Transport) error {
	if !e.complete {
		return errHandshakeIncomplete
	}
	if err := e.conn.CloseWrite(); err != nil {
		return err
	}
	return e.drain(t)
}

func (e *engine) ConnectionState() ConnectionState {
	if !e.complete {
		return ConnectionState{}
	}
	return e.state(e.conn)
}

// Close queues close_notify when the handshake completed; otherwise it
// releases the handshake goroutine.
func (e *engine) Close() error {
	if e.complete {
		return e.conn.Close()
	}
	return e.buf.Close()
}

// drain writes pending ciphertext until the buffer is empty or the
// transport pushes back with ErrWouldBlock.
func (e *engine) drain(t Transport) error {
	for {
		chunk := e.buf.peekOut(scratchSize)
		if len(chunk) == 0 {
			return nil
		}
		n, err := t.Write(chunk)
		if n > 0 {
			e.buf.consumeOut(n)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrWouldBlock
		}
	}
}

// fill moves at most one transport read into the engine's input.
func (e *engine) fill(t Transport) (int, error) {
	n, err := t.Read(e.scratch)
	if n > 0 {
		e.buf.feed(e.scratch[:n])
	}
	return n, err
}
