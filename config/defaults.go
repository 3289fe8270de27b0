package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultPort is the HTTPS port, used when only a host is given.
	DefaultPort = 443

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultKeepAlive is the SSH keepalive interval.
	DefaultKeepAlive = 30 * time.Second

	// DefaultLogFormat is the apex/log handler for terminals.
	DefaultLogFormat = "cli"
)

// Defaults returns a Config holding every default value.
func Defaults() *Config {
	return &Config{
		Port:        DefaultPort,
		ConnTimeout: DefaultConnTimeout,
		KeepAlive:   DefaultKeepAlive,
		LogFormat:   DefaultLogFormat,
	}
}
