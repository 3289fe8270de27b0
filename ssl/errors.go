package ssl

import (
	"errors"
	"fmt"
)

// ErrWouldBlock is returned by non-blocking reads and writes, on both
// transports and secure streams, when no progress is possible until the
// transport signals readiness.  It is never a terminal failure.
var ErrWouldBlock = errors.New("ssl: operation would block")

// ── Canonical taxonomy ───────────────────────────────────────────────

// ErrorKind is the canonical classification of a TLS failure,
// independent of the backend that produced it.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindHandshakeFailed
	KindCertificateVerifyFailed
	KindHostnameMismatch
	KindIo
	KindProtocolViolation
)

func (k ErrorKind) String() string {
	switch k {
	case KindHandshakeFailed:
		return "handshake_failed"
	case KindCertificateVerifyFailed:
		return "certificate_verify_failed"
	case KindHostnameMismatch:
		return "hostname_mismatch"
	case KindIo:
		return "io"
	case KindProtocolViolation:
		return "protocol_violation"
	default:
		return "other"
	}
}

// IoKind refines KindIo.
type IoKind int

const (
	IoOther IoKind = iota
	IoWouldBlock
	IoConnectionReset
	IoBrokenPipe
	IoConnectionAborted
	IoUnexpectedEOF
	IoTimedOut
	IoInterrupted
)

func (k IoKind) String() string {
	switch k {
	case IoWouldBlock:
		return "would_block"
	case IoConnectionReset:
		return "connection_reset"
	case IoBrokenPipe:
		return "broken_pipe"
	case IoConnectionAborted:
		return "connection_aborted"
	case IoUnexpectedEOF:
		return "unexpected_eof"
	case IoTimedOut:
		return "timed_out"
	case IoInterrupted:
		return "interrupted"
	default:
		return "other"
	}
}

// ── Error ────────────────────────────────────────────────────────────

// Error is the only error type crossing the library boundary for fatal
// conditions.  Callers match on Kind (or on the sentinels below with
// errors.Is) and never inspect Err, which is kept for diagnostics.
type Error struct {
	Kind    ErrorKind
	Io      IoKind // meaningful when Kind == KindIo
	Reason  string // short reason, set for KindHandshakeFailed
	Op      string // "context", "handshake", "write", "flush", "read", "close"
	Backend string
	Err     error // raw backend or transport error
}

func (e *Error) Error() string {
	kind := e.Kind.String()
	if e.Kind == KindIo {
		kind += "(" + e.Io.String() + ")"
	}
	msg := "ssl"
	if e.Op != "" {
		msg += " " + e.Op
	}
	msg += ": " + kind
	switch {
	case e.Reason != "":
		msg += ": " + e.Reason
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels (ErrHostnameMismatch, ErrConnectionReset…).
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case kindSentinel:
		return ErrorKind(t) == e.Kind
	case ioSentinel:
		return e.Kind == KindIo && IoKind(t) == e.Io
	}
	return false
}

// Retryable reports whether a new connection attempt may succeed.  Only
// network failures qualify; certificate, hostname and protocol failures
// will fail again.
func (e *Error) Retryable() bool {
	if e.Kind != KindIo {
		return false
	}
	return e.Io != IoInterrupted
}

type kindSentinel ErrorKind

func (k kindSentinel) Error() string { return "ssl: " + ErrorKind(k).String() }

type ioSentinel IoKind

func (k ioSentinel) Error() string { return "ssl: io(" + IoKind(k).String() + ")" }

// Sentinels for errors.Is.
var (
	ErrOther                   error = kindSentinel(KindOther)
	ErrHandshakeFailed         error = kindSentinel(KindHandshakeFailed)
	ErrCertificateVerifyFailed error = kindSentinel(KindCertificateVerifyFailed)
	ErrHostnameMismatch        error = kindSentinel(KindHostnameMismatch)
	ErrIo                      error = kindSentinel(KindIo)
	ErrProtocolViolation       error = kindSentinel(KindProtocolViolation)

	ErrConnectionReset   error = ioSentinel(IoConnectionReset)
	ErrBrokenPipe        error = ioSentinel(IoBrokenPipe)
	ErrConnectionAborted error = ioSentinel(IoConnectionAborted)
	ErrUnexpectedEOF     error = ioSentinel(IoUnexpectedEOF)
	ErrTimedOut          error = ioSentinel(IoTimedOut)
	ErrInterrupted       error = ioSentinel(IoInterrupted)
)

// KindOf returns the canonical kind of err, or KindOther when err was not
// produced by this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// IsCertificateError reports whether err is a certificate or hostname
// verification failure: the peer cannot be trusted and retrying is
// pointless.
func IsCertificateError(err error) bool {
	k := KindOf(err)
	return k == KindCertificateVerifyFailed || k == KindHostnameMismatch
}

func handshakeFailed(op, backend, format string, args ...interface{}) *Error {
	reason := fmt.Sprintf(format, args...)
	return &Error{
		Kind:    KindHandshakeFailed,
		Reason:  reason,
		Op:      op,
		Backend: backend,
		Err:     errors.New(reason),
	}
}
