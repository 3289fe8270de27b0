// Package config defines the runtime configuration for sslcat and the
// helpers that turn flag text (tunnel specs, request strings) into it.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "sslcat/internal/errors"
)

// Config holds every tuneable for a single sslcat run.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host        string
	Port        int
	LocalPort   int           // -p: source port binding
	Timeout     time.Duration // whole-run deadline (0 = none)
	ConnTimeout time.Duration // TCP/SSH connect
	NoDNS       bool
	Retries     int // extra attempts after a retryable failure

	// ── TLS ──────────────────────────────────────────────────────────
	ServerName string // SNI and verification name; defaults to Host
	CAFile     string // PEM bundle replacing the system roots
	TLSVersion string // "TLSv1.2", "TLSv1.3", ... ("" = library default)
	ALPN       []string

	// ── Request (fetch mode) ─────────────────────────────────────────
	Request string // raw request, backslash escapes allowed
	GetPath string // shorthand for a GET request

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	KeepAlive      time.Duration

	// ── Execution ────────────────────────────────────────────────────
	Execute string // -e: program path
	Command string // -c: shell command

	// ── Output ───────────────────────────────────────────────────────
	Verbose    int
	LogFormat  string
	Stats      bool
	DryRun     bool
	ConfigFile string
}

// FetchMode reports whether the run sends one request and reads the
// response to EOF instead of relaying stdin/stdout.
func (c *Config) FetchMode() bool { return c.Request != "" || c.GetPath != "" }

// SNI is the name sent in the handshake and checked against the
// certificate.  IPv6 brackets are stripped.
func (c *Config) SNI() string {
	if c.ServerName != "" {
		return c.ServerName
	}
	return strings.Trim(c.Host, "[]")
}

// RequestBytes renders the request for fetch mode.
func (c *Config) RequestBytes() ([]byte, error) {
	if c.GetPath != "" {
		path := c.GetPath
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return []byte(fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\n\r\n", path, c.SNI())), nil
	}
	s, err := Unescape(c.Request)
	if err != nil {
		return nil, &ncerr.ConfigError{Field: "request", Value: c.Request, Message: err.Error()}
	}
	return []byte(s), nil
}

// ── Request escapes ──────────────────────────────────────────────────

// Unescape expands \r \n \t \\ \0 and \xHH in s.  Any other backslash
// sequence is an error, so typos do not silently reach the wire.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("trailing backslash")
		}
		i++
		switch s[i] {
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '0':
			b.WriteByte(0)
		case '\\':
			b.WriteByte('\\')
		case 'x':
			if i+2 >= len(s) {
				return "", fmt.Errorf(`short \x escape`)
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf(`invalid \x escape %q`, s[i-1:i+3])
			}
			b.WriteByte(byte(v))
			i += 2
		default:
			return "", fmt.Errorf(`unknown escape \%c`, s[i])
		}
	}
	return b.String(), nil
}

// ── TLS version names ────────────────────────────────────────────────

var tlsVersions = map[string]string{
	"1.0": "TLSv1.0", "1.1": "TLSv1.1", "1.2": "TLSv1.2", "1.3": "TLSv1.3",
	"tlsv1": "TLSv1.0", "tlsv1.0": "TLSv1.0", "tlsv1.1": "TLSv1.1",
	"tlsv1.2": "TLSv1.2", "tlsv1.3": "TLSv1.3",
}

// NormalizeTLSVersion maps "1.2", "tlsv1.2" and friends onto the
// canonical "TLSv1.2" form.
func NormalizeTLSVersion(v string) (string, bool) {
	if v == "" {
		return "", true
	}
	canon, ok := tlsVersions[strings.ToLower(strings.TrimSpace(v))]
	return canon, ok
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a numeric port in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port] with an optional bracketed IPv6
// host.
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?(\[[^\]]+\]|[^:\[\]]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = strings.Trim(m[2], "[]")
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.  It
// normalizes TLSVersion in place.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &ncerr.ConfigError{Field: "host", Message: "hostname is required",
			Hint: "usage: sslcat [options] <host> [port]"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ncerr.ConfigError{Field: "port", Value: c.Port, Message: "port out of range 1-65535"}
	}
	if c.NoDNS && net.ParseIP(strings.Trim(c.Host, "[]")) == nil {
		return &ncerr.ConfigError{Field: "no-dns", Value: c.Host,
			Message: "host is not a numeric IP and DNS is disabled",
			Hint:    "pass --servername for the certificate name and an IP as host"}
	}

	if c.Execute != "" && c.Command != "" {
		return &ncerr.ConfigError{Field: "exec", Message: "-e and -c are mutually exclusive"}
	}
	if c.Request != "" && c.GetPath != "" {
		return &ncerr.ConfigError{Field: "request", Message: "--request and --get are mutually exclusive"}
	}
	if c.FetchMode() && (c.Execute != "" || c.Command != "") {
		return &ncerr.ConfigError{Field: "exec", Message: "exec cannot be combined with a fetch request"}
	}
	if c.Request != "" {
		if _, err := Unescape(c.Request); err != nil {
			return &ncerr.ConfigError{Field: "request", Value: c.Request, Message: err.Error(),
				Hint: `supported escapes: \r \n \t \\ \0 \xHH`}
		}
	}

	canon, ok := NormalizeTLSVersion(c.TLSVersion)
	if !ok {
		return &ncerr.ConfigError{Field: "tls-version", Value: c.TLSVersion,
			Message: "unknown TLS version", Hint: "one of 1.0, 1.1, 1.2, 1.3"}
	}
	c.TLSVersion = canon

	if c.CAFile != "" {
		if _, err := os.Stat(c.CAFile); err != nil {
			return &ncerr.ConfigError{Field: "ca-file", Value: c.CAFile, Message: "cannot read CA bundle"}
		}
	}

	if c.Retries < 0 {
		return &ncerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	if c.Timeout < 0 || c.ConnTimeout < 0 {
		return &ncerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}

	switch c.LogFormat {
	case "", "cli", "text", "json":
	default:
		return &ncerr.ConfigError{Field: "log-format", Value: c.LogFormat,
			Message: "unknown log format", Hint: "one of cli, text, json"}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	return nil
}
