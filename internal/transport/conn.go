package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"

	"sslcat/ssl"
	"sslcat/util"
)

// maxBuffered bounds each direction of a pumped transport.  Reading from
// the connection pauses while this much is waiting for the caller.
const maxBuffered = 4 * util.DefaultBufSize

// connTransport adapts a blocking net.Conn (an SSH channel, a pipe) to
// the non-blocking contract with one pump goroutine per direction.
type connTransport struct {
	conn net.Conn

	mu     sync.Mutex
	cond   *sync.Cond // wakes the pumps
	rbuf   bytes.Buffer
	rerr   error
	wbuf   bytes.Buffer
	werr   error
	closed bool

	readable chan struct{}
	writable chan struct{}
	done     chan struct{}
}

// NewConnTransport starts the pumps for c and returns the adapter.  The
// transport owns c.
func NewConnTransport(c net.Conn) ssl.Transport {
	t := &connTransport{
		conn:     c,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	go t.readPump()
	go t.writePump()
	return t
}

func (t *connTransport) readPump() {
	buf := util.GetBuf()
	defer util.PutBuf(buf)

	for {
		t.mu.Lock()
		for !t.closed && t.rbuf.Len() >= maxBuffered {
			t.cond.Wait()
		}
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}

		n, err := t.conn.Read(*buf)

		t.mu.Lock()
		t.rbuf.Write((*buf)[:n])
		if err != nil {
			t.rerr = err
		}
		t.mu.Unlock()
		notify(t.readable)
		if err != nil {
			return
		}
	}
}

func (t *connTransport) writePump() {
	chunk := make([]byte, util.DefaultBufSize)

	for {
		t.mu.Lock()
		for !t.closed && t.werr == nil && t.wbuf.Len() == 0 {
			t.cond.Wait()
		}
		if t.closed || t.werr != nil {
			t.mu.Unlock()
			return
		}
		m := copy(chunk, t.wbuf.Bytes())
		t.mu.Unlock()

		n, err := t.conn.Write(chunk[:m])

		t.mu.Lock()
		t.wbuf.Next(n)
		if err != nil {
			t.werr = err
		}
		t.mu.Unlock()
		notify(t.writable)
	}
}

func (t *connTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.closed:
		return 0, net.ErrClosed
	case len(p) == 0:
		return 0, nil
	case t.rbuf.Len() > 0:
		n, _ := t.rbuf.Read(p)
		t.cond.Broadcast()
		return n, nil
	case t.rerr != nil:
		return 0, t.rerr
	}
	return 0, ssl.ErrWouldBlock
}

func (t *connTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.closed:
		return 0, net.ErrClosed
	case t.werr != nil:
		return 0, t.werr
	case len(p) == 0:
		return 0, nil
	}
	room := maxBuffered - t.wbuf.Len()
	if room <= 0 {
		return 0, ssl.ErrWouldBlock
	}
	if len(p) > room {
		p = p[:room]
	}
	t.wbuf.Write(p)
	t.cond.Broadcast()
	return len(p), nil
}

func (t *connTransport) Await(ctx context.Context, interest ssl.Interest) error {
	var ch chan struct{}
	switch interest {
	case ssl.Readable:
		ch = t.readable
	case ssl.Writable:
		ch = t.writable
	default:
		return errors.New("transport: invalid interest")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.mu.Lock()
		closed := t.closed
		ready := interest == ssl.Readable && (t.rbuf.Len() > 0 || t.rerr != nil) ||
			interest == ssl.Writable && (t.wbuf.Len() < maxBuffered || t.werr != nil)
		t.mu.Unlock()
		if closed {
			return net.ErrClosed
		}
		if ready {
			return nil
		}

		select {
		case <-ch:
		case <-t.done:
		case <-ctx.Done():
		}
	}
}

// Close stops both pumps.  Bytes still queued for writing are dropped.
func (t *connTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.cond.Broadcast()
	t.mu.Unlock()
	return t.conn.Close()
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
