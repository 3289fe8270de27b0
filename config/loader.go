package config

// loader.go - configuration loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile, --config or SSLCAT_CONFIG)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ncerr "sslcat/internal/errors"
)

// ── Config file ──────────────────────────────────────────────────────

// fileConfig is the on-disk shape.  Pointers distinguish "absent" from
// a zero value so only keys present in the file override.
type fileConfig struct {
	Host        *string   `yaml:"host"`
	Port        *int      `yaml:"port"`
	LocalPort   *int      `yaml:"local_port"`
	Timeout     *Duration `yaml:"timeout"`
	ConnTimeout *Duration `yaml:"connect_timeout"`
	NoDNS       *bool     `yaml:"no_dns"`
	Retries     *int      `yaml:"retries"`

	TLS struct {
		ServerName *string  `yaml:"servername"`
		CAFile     *string  `yaml:"ca_file"`
		Version    *string  `yaml:"version"`
		ALPN       []string `yaml:"alpn"`
	} `yaml:"tls"`

	Request *string `yaml:"request"`
	Get     *string `yaml:"get"`

	SSH struct {
		Tunnel        *string   `yaml:"tunnel"`
		Key           *string   `yaml:"key"`
		Password      *bool     `yaml:"password"`
		Agent         *bool     `yaml:"agent"`
		StrictHostKey *bool     `yaml:"strict_hostkey"`
		KnownHosts    *string   `yaml:"known_hosts"`
		KeepAlive     *Duration `yaml:"keepalive"`
	} `yaml:"ssh"`

	Exec    *string `yaml:"exec"`
	Command *string `yaml:"command"`

	Log struct {
		Verbose *int    `yaml:"verbose"`
		Format  *string `yaml:"format"`
	} `yaml:"log"`
	Stats *bool `yaml:"stats"`
}

// Duration accepts "10s"-style strings or bare integers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if sec, err := strconv.Atoi(n.Value); err == nil {
		*d = Duration(time.Duration(sec) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", n.Line, n.Value)
	}
	*d = Duration(v)
	return nil
}

// LoadFile overlays the YAML file at path onto cfg.  Unknown keys are
// rejected.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ncerr.ConfigError{Field: "config", Value: path, Message: err.Error()}
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return &ncerr.ConfigError{Field: "config", Value: path, Message: err.Error()}
	}
	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	set(&cfg.Host, fc.Host)
	set(&cfg.Port, fc.Port)
	set(&cfg.LocalPort, fc.LocalPort)
	setDuration(&cfg.Timeout, fc.Timeout)
	setDuration(&cfg.ConnTimeout, fc.ConnTimeout)
	set(&cfg.NoDNS, fc.NoDNS)
	set(&cfg.Retries, fc.Retries)

	set(&cfg.ServerName, fc.TLS.ServerName)
	set(&cfg.CAFile, fc.TLS.CAFile)
	set(&cfg.TLSVersion, fc.TLS.Version)
	if len(fc.TLS.ALPN) > 0 {
		cfg.ALPN = fc.TLS.ALPN
	}

	set(&cfg.Request, fc.Request)
	set(&cfg.GetPath, fc.Get)

	set(&cfg.TunnelSpec, fc.SSH.Tunnel)
	set(&cfg.SSHKeyPath, fc.SSH.Key)
	set(&cfg.SSHPassword, fc.SSH.Password)
	set(&cfg.UseSSHAgent, fc.SSH.Agent)
	set(&cfg.StrictHostKey, fc.SSH.StrictHostKey)
	set(&cfg.KnownHostsPath, fc.SSH.KnownHosts)
	setDuration(&cfg.KeepAlive, fc.SSH.KeepAlive)

	set(&cfg.Execute, fc.Exec)
	set(&cfg.Command, fc.Command)

	set(&cfg.Verbose, fc.Log.Verbose)
	set(&cfg.LogFormat, fc.Log.Format)
	set(&cfg.Stats, fc.Stats)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the SSLCAT_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// ConfigPathFromEnv returns SSLCAT_CONFIG.
func ConfigPathFromEnv() string { return os.Getenv("SSLCAT_CONFIG") }

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SSLCAT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("SSLCAT_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := envInt("SSLCAT_LOCAL_PORT"); v > 0 {
		cfg.LocalPort = v
	}
	if envBool("SSLCAT_NO_DNS") {
		cfg.NoDNS = true
	}
	if v := envInt("SSLCAT_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}
	if v := envInt("SSLCAT_RETRIES"); v > 0 {
		cfg.Retries = v
	}

	// TLS
	if v := os.Getenv("SSLCAT_SERVERNAME"); v != "" {
		cfg.ServerName = v
	}
	if v := os.Getenv("SSLCAT_CA_FILE"); v != "" {
		cfg.CAFile = v
	}
	if v := os.Getenv("SSLCAT_TLS_VERSION"); v != "" {
		cfg.TLSVersion = v
	}
	if v := os.Getenv("SSLCAT_ALPN"); v != "" {
		cfg.ALPN = splitList(v)
	}

	// SSH tunnel
	if v := os.Getenv("SSLCAT_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("SSLCAT_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("SSLCAT_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("SSLCAT_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("SSLCAT_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("SSLCAT_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envInt("SSLCAT_KEEP_ALIVE"); v > 0 {
		cfg.KeepAlive = secondsDuration(v)
	}

	// Output
	if v := envInt("SSLCAT_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := os.Getenv("SSLCAT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if envBool("SSLCAT_STATS") {
		cfg.Stats = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
