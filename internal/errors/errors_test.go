package errors

import (
	"fmt"
	"io"
	"net"
	"strings"
	"testing"

	"sslcat/ssl"
)

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "dial", Addr: "example.com:80", Err: io.EOF, Retryable: true},
			want: "dial example.com:80: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "listen", Addr: ":8080", Err: fmt.Errorf("bind failed")},
			want: "listen :8080: bind failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "dial", Addr: "x", Err: io.EOF}
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestSSHError_Format(t *testing.T) {
	err := WrapSSH("handshake", "bastion.example.com", 22, fmt.Errorf("connection refused"))
	want := "ssh handshake bastion.example.com:22: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSSHError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("auth fail")
	err := WrapSSH("auth", "host", 22, inner)
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 1-65535",
				Hint:    "use a port between 1 and 65535",
			},
			want: "config: --port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "ca-file",
				Message: "required with --insecure-roots=false",
			},
			want: "config: --ca-file: required with --insecure-roots=false",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := Wrap("dial", "10.0.0.1:22", inner)

	if err.Op != "dial" || err.Addr != "10.0.0.1:22" {
		t.Errorf("wrong fields: Op=%q Addr=%q", err.Op, err.Addr)
	}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: false}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"tls reset", &ssl.Error{Kind: ssl.KindIo, Io: ssl.IoConnectionReset}, true},
		{"tls eof wrapped", fmt.Errorf("fetch: %w", &ssl.Error{Kind: ssl.KindIo, Io: ssl.IoUnexpectedEOF}), true},
		{"tls cancelled", &ssl.Error{Kind: ssl.KindIo, Io: ssl.IoInterrupted}, false},
		{"hostname mismatch", &ssl.Error{Kind: ssl.KindHostnameMismatch}, false},
		{"wrapped certificate failure", Wrap("tls", "x:443", &ssl.Error{Kind: ssl.KindCertificateVerifyFailed}), false},
		{"wrapped tls reset", Wrap("tls", "x:443", &ssl.Error{Kind: ssl.KindIo, Io: ssl.IoTimedOut}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string // substring; "" means no hint
	}{
		{"nil", nil, ""},
		{"plain", fmt.Errorf("boom"), ""},
		{"hostname", Wrap("tls", "x:443", &ssl.Error{Kind: ssl.KindHostnameMismatch}), "--servername"},
		{"untrusted", &ssl.Error{Kind: ssl.KindCertificateVerifyFailed}, "--ca-file"},
		{"not tls", &ssl.Error{Kind: ssl.KindProtocolViolation}, "TLS"},
		{"auth", WrapSSH("auth", "h", 22, ErrAuthFailed), "--ssh-key"},
		{"timeout", fmt.Errorf("%w after 5s: %w", ErrTimeout, io.EOF), "--timeout"},
		{"empty", fmt.Errorf("x:443: %w", ErrEmptyResponse), "-v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hint(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("Hint() = %q, want none", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("Hint() = %q, want it to mention %q", got, tt.want)
			}
		})
	}
}

func TestClassifyRetryable_NetOpError(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{IsTemporary: true},
	}
	if !classifyRetryable(opErr) {
		t.Error("temporary OpError should be retryable")
	}
}

func TestSentinels(t *testing.T) {
	// Verify sentinel errors are distinct.
	sentinels := []error{
		ErrTunnelClosed, ErrNotConnected, ErrEmptyResponse,
		ErrTimeout, ErrAuthFailed, ErrHostKeyMismatch,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"config", &ConfigError{Field: "port", Message: "bad"}, true},
		{"hostname", &ssl.Error{Kind: ssl.KindHostnameMismatch}, true},
		{"untrusted", Wrap("tls", "x", &ssl.Error{Kind: ssl.KindCertificateVerifyFailed}), true},
		{"host key", WrapSSH("handshake", "h", 22, ErrHostKeyMismatch), true},
		{"reset", &ssl.Error{Kind: ssl.KindIo, Io: ssl.IoConnectionReset}, false},
		{"protocol", &ssl.Error{Kind: ssl.KindProtocolViolation}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}
