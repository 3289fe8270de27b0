package ssl

import (
	"crypto/x509"
	"net"
)

// StepResult is the outcome of one handshake step.
type StepResult int

const (
	// StepNeedsRead means the engine waits for ciphertext from the peer.
	StepNeedsRead StepResult = iota + 1
	// StepNeedsWrite means pending ciphertext could not be written.
	StepNeedsWrite
	// StepComplete means the handshake succeeded, including chain and
	// hostname validation.
	StepComplete
)

func (r StepResult) String() string {
	switch r {
	case StepNeedsRead:
		return "needs_read"
	case StepNeedsWrite:
		return "needs_write"
	case StepComplete:
		return "complete"
	default:
		return "invalid"
	}
}

// Backend is the capability surface of a TLS engine.  Exactly one
// backend is compiled in (see DefaultBackend); each contributes its own
// classification table.
type Backend interface {
	// Name identifies the engine in logs and errors.
	Name() string

	// NewSession allocates the per-connection engine state.
	NewSession(cfg *SessionConfig) (Session, error)

	// Rules is the table mapping this engine's raw errors onto ErrorKind.
	Rules() Rules
}

// Session is the per-connection state of a backend.  Every method is
// non-blocking with respect to the transport: lack of progress is
// reported as StepNeedsRead/StepNeedsWrite or ErrWouldBlock.  Errors
// returned are raw; the caller classifies them with Backend.Rules.
type Session interface {
	Step(t Transport) (StepResult, error)
	Read(t Transport, p []byte) (int, error)
	Write(t Transport, p []byte) (int, error)
	Flush(t Transport) error
	CloseWrite(t Transport) error
	ConnectionState() ConnectionState
	Close() error
}

// SessionConfig carries the validated client parameters handed to a
// backend.
type SessionConfig struct {
	ServerName string
	RootCAs    *x509.CertPool
	NextProtos []string
	MinVersion uint16
	MaxVersion uint16
}

// ConnectionState is the backend independent view of a finished
// handshake.
type ConnectionState struct {
	Version            uint16
	CipherSuite        uint16
	NegotiatedProtocol string
	ServerName         string
	PeerCertificates   []*x509.Certificate
}

// DefaultBackend returns the engine selected at build time.
func DefaultBackend() Backend { return defaultBackend }

// engineConn is what the Go TLS engines have in common once created over
// a net.Conn.
type engineConn interface {
	Handshake() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	CloseWrite() error
	Close() error
}

// engineBackend adapts a blocking crypto/tls-style engine into a Backend
// by running it over a memory buffer.
type engineBackend struct {
	name  string
	rules Rules

	// client creates the engine over conn.
	client func(conn net.Conn, cfg *SessionConfig) (engineConn, error)

	// state extracts the negotiated parameters from a finished engine.
	state func(c engineConn) ConnectionState
}

func (b *engineBackend) Name() string { return b.name }

func (b *engineBackend) Rules() Rules { return b.rules }

func (b *engineBackend) NewSession(cfg *SessionConfig) (Session, error) {
	buf := newMemBuffer()
	conn, err := b.client(buf, cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(conn, buf, b.state), nil
}
