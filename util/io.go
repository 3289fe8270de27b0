package util

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"sslcat/ssl"
)

// DefaultBufSize is the standard buffer size for network I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// halfCloser is implemented by connections that can signal end of input
// while still reading: *net.TCPConn, *ssl.Conn (close_notify).
type halfCloser interface {
	CloseWrite() error
}

// BidirectionalCopy shuffles data between a connection and an arbitrary
// reader/writer pair (typically stdin/stdout) until one side reaches EOF
// or the context is cancelled.
func BidirectionalCopy(ctx context.Context, conn io.ReadWriteCloser, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// network → writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := copyBuffered(w, conn)
		errCh <- err
		cancel()
	}()

	// reader → network
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := copyBuffered(conn, r)
		// Half-close so the remote knows we're done sending; the read
		// side stays open to drain what the server still has.
		if hc, ok := conn.(halfCloser); ok && err == nil {
			if cerr := hc.CloseWrite(); cerr != nil && !isHarmless(cerr) {
				err = cerr
			}
		}
		errCh <- err
		// A normal EOF from the reader must not tear down the
		// connection before the remote finishes sending.
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock any pending reads/writes
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil && !isHarmless(err) {
			return err
		}
	}
	return nil
}

func copyBuffered(dst io.Writer, src io.Reader) (int64, error) {
	buf := GetBuf()
	defer PutBuf(buf)
	return io.CopyBuffer(dst, src, *buf)
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// Our own Close racing a blocked read or write on a secure stream.
	if errors.Is(err, ssl.ErrConnectionAborted) || errors.Is(err, context.Canceled) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
