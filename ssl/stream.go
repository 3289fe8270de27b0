package ssl

import (
	"context"
	"errors"
	"io"

	"github.com/apex/log"
)

// SecureStream is the post-handshake view of a transport.  Read, Write
// and Flush never wait: they make partial progress or return
// ErrWouldBlock, after which the caller suspends in Await.  A clean
// close by the peer is reported as io.EOF.  Any other failure is an
// *Error and is terminal.
//
// A SecureStream is owned by one goroutine at a time.
type SecureStream struct {
	transport Transport
	session   Session
	rules     Rules
	backend   string
	observer  Observer
	logger    *log.Entry
	state     ConnectionState

	err    *Error
	closed bool
}

func newSecureStream(c *ClientContext, t Transport) *SecureStream {
	return &SecureStream{
		transport: t,
		session:   c.session,
		rules:     c.backend.Rules(),
		backend:   c.backend.Name(),
		observer:  c.observer,
		logger:    c.logger.WithFields(c.fields()),
		state:     c.session.ConnectionState(),
	}
}

// Write encrypts a prefix of p and returns how much of p was consumed.
// When the transport cannot absorb more ciphertext it returns
// (0, ErrWouldBlock).
func (s *SecureStream) Write(p []byte) (int, error) {
	if err := s.usable("write"); err != nil {
		return 0, err
	}
	n, err := s.session.Write(s.transport, p)
	if n > 0 {
		s.observer.BytesSent(int64(n))
	}
	if err != nil {
		return n, s.fail("write", err)
	}
	return n, nil
}

// Flush pushes buffered ciphertext to the transport.  It succeeds
// immediately when nothing is pending.
func (s *SecureStream) Flush() error {
	if err := s.usable("flush"); err != nil {
		return err
	}
	if err := s.session.Flush(s.transport); err != nil {
		return s.fail("flush", err)
	}
	return nil
}

// CloseWrite sends close_notify, telling the peer no more data follows,
// while keeping the read side open.  It returns ErrWouldBlock when the
// alert is queued but not yet written; finish with Flush.
func (s *SecureStream) CloseWrite() error {
	if err := s.usable("close_write"); err != nil {
		return err
	}
	if err := s.session.CloseWrite(s.transport); err != nil {
		return s.fail("close_write", err)
	}
	return nil
}

// Read decrypts into p.  It returns io.EOF once the peer has closed the
// stream and ErrWouldBlock when no complete record is available yet.
func (s *SecureStream) Read(p []byte) (int, error) {
	if err := s.usable("read"); err != nil {
		return 0, err
	}
	n, err := s.session.Read(s.transport, p)
	if n > 0 {
		s.observer.BytesReceived(int64(n))
	}
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		return n, io.EOF
	default:
		return n, s.fail("read", err)
	}
}

// Await suspends until the underlying transport is ready for interest.
func (s *SecureStream) Await(ctx context.Context, interest Interest) error {
	if err := s.usable("await"); err != nil {
		return err
	}
	s.observer.Suspended(interest)
	if err := s.transport.Await(ctx, interest); err != nil {
		return s.rules.Classify("await", s.backend, err)
	}
	return nil
}

// ConnectionState describes the negotiated session.
func (s *SecureStream) ConnectionState() ConnectionState { return s.state }

// Backend names the engine that negotiated this stream.
func (s *SecureStream) Backend() string { return s.backend }

// Close sends close_notify if the transport takes it without blocking,
// then releases the transport.  It is safe to call more than once.
func (s *SecureStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.err == nil {
		s.session.Close()
		s.session.Flush(s.transport) //nolint:errcheck // best effort
	} else {
		s.session.Close()
	}
	s.logger.Debug("tls stream closed")
	return s.transport.Close()
}

func (s *SecureStream) usable(op string) error {
	if s.closed {
		return &Error{Kind: KindIo, Io: IoConnectionAborted, Op: op, Backend: s.backend, Err: errStreamClosed}
	}
	if s.err != nil {
		return s.err
	}
	return nil
}

// fail classifies err.  ErrWouldBlock passes through untouched; anything
// else poisons the stream.
func (s *SecureStream) fail(op string, err error) error {
	if errors.Is(err, ErrWouldBlock) {
		return ErrWouldBlock
	}
	e := s.rules.Classify(op, s.backend, err)
	s.err = e
	s.logger.WithFields(log.Fields{"op": op, "kind": e.Kind.String()}).WithError(err).Debug("tls stream failed")
	return e
}

var errStreamClosed = errors.New("use of closed secure stream")
