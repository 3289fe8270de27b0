package ssl

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Conn is a blocking io.ReadWriteCloser over a SecureStream, for code
// that wants plain Read/Write semantics (copy loops, exec relays).
// Every call suspends in the stream's Await bound to the context given
// to NewConn; cancelling that context unblocks pending calls.
//
// Reads and writes may run on different goroutines; the stream itself
// is only touched under mu.
type Conn struct {
	ctx    context.Context
	stream *SecureStream

	mu sync.Mutex
}

// NewConn wraps s.  The Conn owns s and closes it on Close.
func NewConn(ctx context.Context, s *SecureStream) *Conn {
	return &Conn{ctx: ctx, stream: s}
}

// Read blocks until at least one byte is available or the peer closes.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		c.mu.Lock()
		n, err := c.stream.Read(p)
		c.mu.Unlock()
		if n > 0 {
			if errors.Is(err, ErrWouldBlock) {
				err = nil
			}
			return n, err
		}
		if !errors.Is(err, ErrWouldBlock) {
			return 0, err
		}
		if err := c.await(Readable); err != nil {
			return 0, err
		}
	}
}

// Write blocks until all of p has been handed to the transport.
func (c *Conn) Write(p []byte) (int, error) {
	w := NewPendingWrite(p)
	for !w.Done() {
		c.mu.Lock()
		n, err := c.stream.Write(w.Remaining())
		if err == nil {
			err = c.stream.Flush()
		}
		c.mu.Unlock()
		w.Advance(n)
		switch {
		case err == nil:
		case errors.Is(err, ErrWouldBlock):
			if err := c.await(Writable); err != nil {
				return w.Offset(), err
			}
		default:
			return w.Offset(), err
		}
	}
	return w.Offset(), c.flush()
}

func (c *Conn) flush() error {
	for {
		c.mu.Lock()
		err := c.stream.Flush()
		c.mu.Unlock()
		if !errors.Is(err, ErrWouldBlock) {
			return err
		}
		if err := c.await(Writable); err != nil {
			return err
		}
	}
}

// CloseWrite sends close_notify and blocks until it is on the wire.
// Reads keep working until the peer closes its side.
func (c *Conn) CloseWrite() error {
	c.mu.Lock()
	err := c.stream.CloseWrite()
	c.mu.Unlock()
	if err != nil && !errors.Is(err, ErrWouldBlock) {
		return err
	}
	return c.flush()
}

// await waits outside mu so a blocked reader does not hold up writers.
func (c *Conn) await(interest Interest) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	return c.stream.transport.Await(c.ctx, interest)
}

// Stream returns the wrapped stream.
func (c *Conn) Stream() *SecureStream { return c.stream }

// Close sends close_notify when possible and releases the transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Close()
}

var _ io.ReadWriteCloser = (*Conn)(nil)
