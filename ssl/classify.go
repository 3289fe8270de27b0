package ssl

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// Rule maps one class of raw backend failures onto a canonical kind.
type Rule struct {
	Name  string
	Match func(err error) bool
	Kind  ErrorKind
	Io    IoKind

	// Reason, when set, extracts a short reason for KindHandshakeFailed.
	Reason func(err error) string
}

// Rules is an ordered classification table: the first matching rule
// wins.  Each backend owns one table; call sites never inspect raw
// backend errors themselves.
type Rules []Rule

// Classify maps err onto the canonical taxonomy.  op and backend are
// recorded on the result.  A nil err yields nil; an *Error is returned
// unchanged; an unmatched err becomes KindOther.
func (rs Rules) Classify(op, backend string, err error) *Error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}
	for _, r := range rs {
		if !r.Match(err) {
			continue
		}
		e := &Error{Kind: r.Kind, Io: r.Io, Op: op, Backend: backend, Err: err}
		if r.Reason != nil {
			e.Reason = r.Reason(err)
		}
		return e
	}
	return &Error{Kind: KindOther, Op: op, Backend: backend, Err: err}
}

// Lookup returns the name of the first rule matching err, or "".
func (rs Rules) Lookup(err error) string {
	for _, r := range rs {
		if r.Match(err) {
			return r.Name
		}
	}
	return ""
}

// ── Matchers ─────────────────────────────────────────────────────────

// matchAs matches any error whose chain contains a T.
func matchAs[T error]() func(error) bool {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

func matchIs(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

func matchContains(substrings ...string) func(error) bool {
	return func(err error) bool {
		s := err.Error()
		for _, sub := range substrings {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

// matchRemoteAlert matches an alert sent by the peer.  Engines derived
// from crypto/tls report these as *net.OpError{Op: "remote error"}.
func matchRemoteAlert(alerts ...string) func(error) bool {
	return func(err error) bool {
		var op *net.OpError
		if !errors.As(err, &op) || op.Op != "remote error" || op.Err == nil {
			return false
		}
		s := op.Err.Error()
		for _, a := range alerts {
			if strings.HasSuffix(s, a) {
				return true
			}
		}
		return false
	}
}

// tlsReason strips the "tls: " prefix and any wrapping so that the
// reason reads like the engine's own diagnostic.
func tlsReason(err error) string {
	s := err.Error()
	if i := strings.LastIndex(s, "tls: "); i >= 0 {
		return s[i+len("tls: "):]
	}
	return s
}

// ── Shared tables ────────────────────────────────────────────────────

// certificateRules covers crypto/x509 verification failures, which every
// Go engine reports the same way, plus the reason strings native engines
// use for the same condition.  The x509 rules precede the generic
// verification wrapper, which also wraps hostname errors.
var certificateRules = Rules{
	{Name: "x509_hostname", Match: matchAs[x509.HostnameError](), Kind: KindHostnameMismatch},
	{Name: "x509_unknown_authority", Match: matchAs[x509.UnknownAuthorityError](), Kind: KindCertificateVerifyFailed},
	{Name: "x509_certificate_invalid", Match: matchAs[x509.CertificateInvalidError](), Kind: KindCertificateVerifyFailed},
	{Name: "x509_system_roots", Match: matchAs[x509.SystemRootsError](), Kind: KindCertificateVerifyFailed},
	{Name: "x509_critical_extension", Match: matchAs[x509.UnhandledCriticalExtension](), Kind: KindCertificateVerifyFailed},
	{Name: "x509_constraint", Match: matchAs[x509.ConstraintViolationError](), Kind: KindCertificateVerifyFailed},
	{Name: "tls_certificate_verification", Match: matchAs[*tls.CertificateVerificationError](), Kind: KindCertificateVerifyFailed},
	{
		Name:  "native_verify_reason",
		Match: matchContains("failed to verify certificate", "certificate verify failed", "invalid certificate chain"),
		Kind:  KindCertificateVerifyFailed,
	},
	{
		Name: "remote_certificate_alert",
		Match: matchRemoteAlert(
			"bad certificate", "unsupported certificate", "revoked certificate",
			"expired certificate", "unknown certificate", "unknown certificate authority",
			"certificate required",
		),
		Kind: KindCertificateVerifyFailed,
	},
	{Name: "remote_unrecognized_name", Match: matchRemoteAlert("unrecognized name"), Kind: KindHostnameMismatch},
}

// ioRules is platform independent; platformIoRules (classify_*.go) holds
// the errno mappings that differ per operating system.
var ioRules = Rules{
	{Name: "context_canceled", Match: matchIs(context.Canceled), Kind: KindIo, Io: IoInterrupted},
	{Name: "deadline", Match: matchIs(context.DeadlineExceeded, os.ErrDeadlineExceeded), Kind: KindIo, Io: IoTimedOut},
	{Name: "closed", Match: matchIs(net.ErrClosed, io.ErrClosedPipe), Kind: KindIo, Io: IoConnectionAborted},
	{Name: "eof", Match: matchIs(io.EOF, io.ErrUnexpectedEOF), Kind: KindIo, Io: IoUnexpectedEOF},
	{Name: "syscall_reset", Match: matchIs(syscall.ECONNRESET), Kind: KindIo, Io: IoConnectionReset},
	{Name: "syscall_pipe", Match: matchIs(syscall.EPIPE), Kind: KindIo, Io: IoBrokenPipe},
	{Name: "syscall_aborted", Match: matchIs(syscall.ECONNABORTED), Kind: KindIo, Io: IoConnectionAborted},
	{Name: "syscall_timedout", Match: matchIs(syscall.ETIMEDOUT), Kind: KindIo, Io: IoTimedOut},
	{Name: "reset_suffix", Match: matchContains("connection reset by peer"), Kind: KindIo, Io: IoConnectionReset},
	{Name: "pipe_suffix", Match: matchContains("broken pipe"), Kind: KindIo, Io: IoBrokenPipe},
	{Name: "net_timeout", Match: isNetTimeout, Kind: KindIo, Io: IoTimedOut},
	{Name: "net_op", Match: isTransportOpError, Kind: KindIo, Io: IoOther},
}

// protocolRules covers record-layer and message-level violations.  The
// record header check is engine specific and lives in the backend table.
var protocolRules = Rules{
	{
		Name: "protocol_message",
		Match: matchContains(
			"unexpected message", "record overflow", "decode error",
			"received record with version", "oversized record",
			"first record does not look like a TLS handshake",
		),
		Kind: KindProtocolViolation,
	},
	{
		Name:  "remote_protocol_alert",
		Match: matchRemoteAlert("protocol version not supported", "illegal parameter", "error decoding message"),
		Kind:  KindProtocolViolation,
	},
}

// handshakeRules is the catch-all for engine diagnostics that are not
// about certificates or framing.
var handshakeRules = Rules{
	{Name: "tls_failure", Match: matchContains("tls: "), Kind: KindHandshakeFailed, Reason: tlsReason},
}

// newTable assembles a backend table: backend specific rules first, then
// the shared tables in order of specificity.
func newTable(specific ...Rule) Rules {
	out := make(Rules, 0, len(specific)+len(certificateRules)+len(platformIoRules)+len(ioRules)+len(protocolRules)+len(handshakeRules))
	out = append(out, specific...)
	out = append(out, certificateRules...)
	out = append(out, platformIoRules...)
	out = append(out, ioRules...)
	out = append(out, protocolRules...)
	out = append(out, handshakeRules...)
	return out
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isTransportOpError matches read/write failures reported by the
// network stack that no errno rule recognised.
func isTransportOpError(err error) bool {
	var op *net.OpError
	if !errors.As(err, &op) {
		return false
	}
	return op.Op == "read" || op.Op == "write" || op.Op == "dial"
}
