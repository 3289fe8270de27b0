package ssl

import (
	"context"
	"time"

	"github.com/apex/log"
)

// HandshakeState tracks a ClientContext through its single handshake.
type HandshakeState int32

const (
	NotStarted HandshakeState = iota
	InProgress
	Complete
	Failed
)

func (s HandshakeState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handshake negotiates TLS over t and returns the resulting stream.  It
// takes ownership of t: on success t belongs to the stream, on failure
// it has been closed.  Suspension happens only while waiting for t to
// become readable or writable; cancelling ctx abandons the handshake
// without further I/O.
func (c *ClientContext) Handshake(ctx context.Context, t Transport) (*SecureStream, error) {
	name := c.backend.Name()
	if !c.used.CompareAndSwap(false, true) {
		t.Close()
		return nil, handshakeFailed("handshake", name, "client context already used")
	}

	logger := c.logger.WithFields(c.fields())
	logger.Debug("tls handshake")
	start := time.Now()
	c.state.Store(int32(InProgress))

	stream, err := c.drive(ctx, t)
	elapsed := time.Since(start)
	if err != nil {
		c.state.Store(int32(Failed))
		c.session.Close()
		t.Close()
		c.observer.HandshakeDone(name, elapsed, err)
		logger.WithFields(log.Fields{"kind": err.Kind.String(), "elapsed": elapsed}).WithError(err.Err).Debug("tls handshake failed")
		return nil, err
	}

	c.state.Store(int32(Complete))
	c.observer.HandshakeDone(name, elapsed, nil)
	st := stream.ConnectionState()
	logger.WithFields(log.Fields{
		"elapsed": elapsed,
		"version": TLSVersionString(st.Version),
		"cipher":  TLSCipherSuiteString(st.CipherSuite),
		"alpn":    st.NegotiatedProtocol,
	}).Debug("tls handshake ok")
	return stream, nil
}

// drive runs the NotStarted → InProgress → Complete|Failed machine.
func (c *ClientContext) drive(ctx context.Context, t Transport) (*SecureStream, *Error) {
	rules := c.backend.Rules()
	name := c.backend.Name()
	for {
		if err := ctx.Err(); err != nil {
			return nil, rules.Classify("handshake", name, err)
		}
		res, err := c.session.Step(t)
		if err != nil {
			return nil, rules.Classify("handshake", name, err)
		}
		var interest Interest
		switch res {
		case StepComplete:
			return newSecureStream(c, t), nil
		case StepNeedsRead:
			interest = Readable
		case StepNeedsWrite:
			interest = Writable
		default:
			return nil, handshakeFailed("handshake", name, "backend returned %s", res)
		}
		c.observer.Suspended(interest)
		if err := t.Await(ctx, interest); err != nil {
			return nil, rules.Classify("handshake", name, err)
		}
	}
}

// ConnectSecure is the one-call form: it builds a ClientContext for
// hostname and runs its handshake over t.
func ConnectSecure(ctx context.Context, t Transport, hostname string, opts ...Option) (*SecureStream, error) {
	cc, err := NewClientContext(hostname, opts...)
	if err != nil {
		t.Close()
		return nil, err
	}
	return cc.Handshake(ctx, t)
}
