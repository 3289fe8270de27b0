//go:build unix

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"sslcat/ssl"
)

// fdTransport drives a TCP socket with raw read(2)/write(2) calls.  The
// runtime already keeps the descriptor in non-blocking mode; Await parks
// in the netpoller until the kernel reports readiness.
type fdTransport struct {
	conn *net.TCPConn
	raw  syscall.RawConn
}

func newTCPTransport(c *net.TCPConn) (ssl.Transport, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return nil, err
	}
	return &fdTransport{conn: c, raw: raw}, nil
}

func (t *fdTransport) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var (
		n     int
		errno error
	)
	err := t.raw.Read(func(fd uintptr) bool {
		for {
			n, errno = unix.Read(int(fd), p)
			if errno != unix.EINTR {
				return true // never park here; Await does that
			}
		}
	})
	if err != nil {
		return 0, err
	}
	switch {
	case errno == unix.EAGAIN:
		return 0, ssl.ErrWouldBlock
	case errno != nil:
		return 0, t.opError("read", errno)
	case n <= 0:
		return 0, io.EOF
	}
	return n, nil
}

func (t *fdTransport) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var (
		n     int
		errno error
	)
	err := t.raw.Write(func(fd uintptr) bool {
		for {
			n, errno = unix.Write(int(fd), p)
			if errno != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}
	switch {
	case errno == unix.EAGAIN:
		return 0, ssl.ErrWouldBlock
	case errno != nil:
		return 0, t.opError("write", errno)
	case n < 0:
		n = 0
	}
	return n, nil
}

// Await waits for the descriptor to become ready.  Readiness is a hint:
// the next Read or Write may still report ErrWouldBlock.
func (t *fdTransport) Await(ctx context.Context, interest ssl.Interest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wait, setDeadline := t.raw.Read, t.conn.SetReadDeadline
	switch interest {
	case ssl.Readable:
	case ssl.Writable:
		wait, setDeadline = t.raw.Write, t.conn.SetWriteDeadline
	default:
		return errors.New("transport: invalid interest")
	}

	// A deadline in the past is the only way to kick a goroutine out of
	// the netpoller.  It is left in place: once ctx is done the
	// transport is finished.
	stop := context.AfterFunc(ctx, func() { setDeadline(time.Unix(1, 0)) })
	parked := false
	err := wait(func(uintptr) bool {
		if parked {
			return true
		}
		parked = true
		return false
	})
	if !stop() {
		return ctx.Err()
	}
	return err
}

func (t *fdTransport) Close() error { return t.conn.Close() }

func (t *fdTransport) opError(op string, errno error) error {
	return &net.OpError{
		Op:     op,
		Net:    "tcp",
		Source: t.conn.LocalAddr(),
		Addr:   t.conn.RemoteAddr(),
		Err:    os.NewSyscallError(op, errno),
	}
}
