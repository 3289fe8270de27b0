package core

import (
	"os"
	"path/filepath"
	"testing"

	"sslcat/config"
	"sslcat/internal/capability"
	ncerr "sslcat/internal/errors"
	"sslcat/internal/metrics"
	"sslcat/internal/tlstest"
	"sslcat/internal/transport"
	"sslcat/util"
)

func testConfig(mut func(*config.Config)) *config.Config {
	cfg := config.Defaults()
	cfg.Host = "example.com"
	if mut != nil {
		mut(cfg)
	}
	return cfg
}

// TestBuild_Connect verifies that Build produces a ConnectMode for
// a plain host/port configuration.
func TestBuild_Connect(t *testing.T) {
	mode, err := Build(testConfig(nil), util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	cm, ok := mode.(*ConnectMode)
	if !ok {
		t.Fatalf("expected *ConnectMode, got %T", mode)
	}
	if cm.Address != "example.com:443" {
		t.Errorf("address = %q", cm.Address)
	}
	if cm.Hostname != "example.com" {
		t.Errorf("hostname = %q", cm.Hostname)
	}
	if _, ok := cm.Capability.(*capability.Relay); !ok {
		t.Errorf("expected Relay, got %T", cm.Capability)
	}
	if _, ok := cm.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("expected TCPDialer, got %T", cm.Dialer)
	}
	if cm.Backoff != nil {
		t.Error("backoff should be nil without --retries")
	}
}

// TestBuild_Fetch verifies that a request selects FetchMode and that
// --servername overrides the verification name.
func TestBuild_Fetch(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		c.GetPath = "/index.html"
		c.ServerName = "www.example.com"
		c.Retries = 2
	})
	mode, err := Build(cfg, util.NewLogger(0), metrics.New())
	if err != nil {
		t.Fatal(err)
	}
	fm, ok := mode.(*FetchMode)
	if !ok {
		t.Fatalf("expected *FetchMode, got %T", mode)
	}
	if fm.Hostname != "www.example.com" {
		t.Errorf("hostname = %q", fm.Hostname)
	}
	want := "GET /index.html HTTP/1.0\r\nHost: www.example.com\r\n\r\n"
	if string(fm.Request) != want {
		t.Errorf("request = %q, want %q", fm.Request, want)
	}
	if fm.Backoff == nil || fm.Backoff.MaxAttempts != 3 {
		t.Errorf("backoff = %+v, want 3 attempts", fm.Backoff)
	}
}

// TestBuild_NoDNS_Error verifies that a hostname with -n is rejected.
func TestBuild_NoDNS_Error(t *testing.T) {
	cfg := testConfig(func(c *config.Config) { c.NoDNS = true })
	_, err := Build(cfg, util.NewLogger(0), nil)
	var ce *ncerr.ConfigError
	if !ncerr.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

// TestBuild_NoDNS_IP verifies that a numeric IP with -n is accepted,
// bracketed IPv6 included.
func TestBuild_NoDNS_IP(t *testing.T) {
	for host, want := range map[string]string{
		"127.0.0.1": "127.0.0.1:443",
		"[::1]":     "[::1]:443",
	} {
		cfg := testConfig(func(c *config.Config) { c.Host = host; c.NoDNS = true })
		mode, err := Build(cfg, util.NewLogger(0), nil)
		if err != nil {
			t.Fatalf("%s: %v", host, err)
		}
		if got := mode.(*ConnectMode).Address; got != want {
			t.Errorf("%s: address = %q, want %q", host, got, want)
		}
	}
}

// TestBuild_ExecCapability verifies that -e/-c selects the Exec
// capability instead of Relay.
func TestBuild_ExecCapability(t *testing.T) {
	cfg := testConfig(func(c *config.Config) { c.Command = "cat" })
	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	ex, ok := mode.(*ConnectMode).Capability.(*capability.Exec)
	if !ok || ex.Command != "cat" {
		t.Errorf("capability = %#v", mode.(*ConnectMode).Capability)
	}
}

// TestBuild_Tunnel verifies that a tunnel spec selects the SSH dialer.
func TestBuild_Tunnel(t *testing.T) {
	cfg := testConfig(func(c *config.Config) { c.TunnelSpec = "admin@bastion:2222" })
	if err := cfg.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}
	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.(*ConnectMode).Dialer.(*transport.SSHDialer); !ok {
		t.Errorf("expected SSHDialer, got %T", mode.(*ConnectMode).Dialer)
	}
}

func TestBuild_CAFile(t *testing.T) {
	dir := t.TempDir()
	ca, err := tlstest.NewCA()
	if err != nil {
		t.Fatal(err)
	}
	good := filepath.Join(dir, "ca.pem")
	bad := filepath.Join(dir, "junk.pem")
	if err := os.WriteFile(good, ca.PEM(), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("not a cert\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Build(testConfig(func(c *config.Config) { c.CAFile = good }), util.NewLogger(0), nil); err != nil {
		t.Errorf("good bundle: %v", err)
	}

	_, err = Build(testConfig(func(c *config.Config) { c.CAFile = bad }), util.NewLogger(0), nil)
	var ce *ncerr.ConfigError
	if !ncerr.As(err, &ce) || ce.Field != "ca-file" {
		t.Errorf("junk bundle: got %v", err)
	}
}

func TestShouldRetry(t *testing.T) {
	if shouldRetry(&ncerr.ConfigError{Field: "port"}) {
		t.Error("config errors are permanent")
	}
	if shouldRetry(ncerr.ErrHostKeyMismatch) {
		t.Error("host key mismatch is permanent")
	}
	if !shouldRetry(&ncerr.NetworkError{Op: "dial", Retryable: true}) {
		t.Error("retryable network error rejected")
	}
}
