package ssl

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/apex/log"
)

// PendingWrite is a cursor over an immutable buffer being written
// through a non-blocking stream.  It survives suspensions so a resumed
// write continues exactly where the previous attempt stopped.
type PendingWrite struct {
	buf []byte
	off int
}

// NewPendingWrite returns a cursor positioned at the start of buf.
func NewPendingWrite(buf []byte) *PendingWrite { return &PendingWrite{buf: buf} }

// Remaining returns the unwritten suffix.
func (w *PendingWrite) Remaining() []byte { return w.buf[w.off:] }

// Advance records that n more bytes were accepted.
func (w *PendingWrite) Advance(n int) {
	w.off += n
	if w.off > len(w.buf) {
		w.off = len(w.buf)
	}
}

// Offset returns how many bytes have been written.
func (w *PendingWrite) Offset() int { return w.off }

// Done reports whether the whole buffer has been written.
func (w *PendingWrite) Done() bool { return w.off >= len(w.buf) }

// Stream is the non-blocking surface the pipeline stages drive.
// *SecureStream implements it.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
	Await(ctx context.Context, interest Interest) error
}

var _ Stream = (*SecureStream)(nil)

// WriteAll writes data in order, exactly once.  Partial writes advance
// the cursor and are retried at once; ErrWouldBlock suspends until the
// stream is writable; any other error ends the stage.
func WriteAll(ctx context.Context, s Stream, data []byte) error {
	return writePending(ctx, s, NewPendingWrite(data))
}

func writePending(ctx context.Context, s Stream, w *PendingWrite) error {
	for !w.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.Write(w.Remaining())
		w.Advance(n)
		switch {
		case err == nil:
		case errors.Is(err, ErrWouldBlock):
			if err := s.Await(ctx, Writable); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// Flush pushes everything buffered by the stream onto the transport,
// suspending while the transport pushes back.
func Flush(ctx context.Context, s Stream) error {
	for {
		err := s.Flush()
		if !errors.Is(err, ErrWouldBlock) {
			return err
		}
		if err := s.Await(ctx, Writable); err != nil {
			return err
		}
	}
}

// ReadToEnd appends everything the peer sends to buf until it closes
// the stream cleanly.
func ReadToEnd(ctx context.Context, s Stream, buf []byte) ([]byte, error) {
	const minRead = 4096
	for {
		if err := ctx.Err(); err != nil {
			return buf, err
		}
		if cap(buf)-len(buf) < minRead {
			buf = append(buf, make([]byte, minRead)...)[:len(buf)]
		}
		n, err := s.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return buf, nil
		case errors.Is(err, ErrWouldBlock):
			if err := s.Await(ctx, Readable); err != nil {
				return buf, err
			}
		default:
			return buf, err
		}
	}
}

// Fetch runs handshake → write-all → flush → read-to-end over t as one
// task and resolves to everything the peer sent before closing.  Each
// stage starts only after the previous one succeeded; the first failure
// resolves the future with that stage's error.  t is owned by the task
// and closed when it ends, including on Cancel.
//
// There is no internal deadline: race Await against your own context
// to bound the whole exchange.
func Fetch(ctx context.Context, t Transport, hostname string, request []byte, opts ...Option) *Future[[]byte] {
	return Go(ctx, func(ctx context.Context) ([]byte, error) {
		cc, err := NewClientContext(hostname, opts...)
		if err != nil {
			t.Close()
			return nil, err
		}
		return (&Pipeline{Context: cc, Transport: t, Request: request}).Run(ctx)
	})
}

// Pipeline is the explicit form of Fetch, useful when the caller wants
// to keep the ClientContext (for its id or state).
type Pipeline struct {
	Context   *ClientContext
	Transport Transport
	Request   []byte
}

// Run executes the pipeline on the calling goroutine.
func (p *Pipeline) Run(ctx context.Context) ([]byte, error) {
	cc := p.Context
	logger := cc.logger.WithFields(cc.fields())
	start := time.Now()

	stream, err := cc.Handshake(ctx, p.Transport)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := WriteAll(ctx, stream, p.Request); err != nil {
		return nil, stream.stageError("write", err)
	}
	if err := Flush(ctx, stream); err != nil {
		return nil, stream.stageError("flush", err)
	}
	data, err := ReadToEnd(ctx, stream, nil)
	if err != nil {
		return nil, stream.stageError("read", err)
	}

	logger.WithFields(log.Fields{
		"sent":     len(p.Request),
		"received": len(data),
		"elapsed":  time.Since(start),
	}).Debug("tls pipeline done")
	return data, nil
}

// stageError makes sure errors leaving a stage are canonical, including
// context errors raised between stream calls.
func (s *SecureStream) stageError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return s.rules.Classify(op, s.backend, err)
}
