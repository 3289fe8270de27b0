// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"sslcat/config"
	"sslcat/internal/core"
	"sslcat/internal/metrics"
	"sslcat/ssl"
	"sslcat/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X sslcat/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Output streams, swapped by tests.
var (
	stdout io.Writer = os.Stdout //nolint:gochecknoglobals
	stderr io.Writer = os.Stderr //nolint:gochecknoglobals
)

// cliOptions holds flags that steer the CLI itself rather than the run.
type cliOptions struct {
	configFile  string
	timeoutSec  int
	verbose     int
	showVersion bool
	showHelp    bool
}

// Execute parses args and runs one fetch or interactive session.
//
// Flags are parsed twice: once to find --config, then over a Config
// already layered from defaults, the config file and the environment,
// so that flags win.
func Execute(ctx context.Context, args []string) error {
	var probe cliOptions
	fs := newFlagSet(config.Defaults(), &probe)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if probe.showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if probe.showVersion {
		fmt.Fprintf(stdout, "sslcat %s (tls backend: %s)\n", version, ssl.DefaultBackend().Name())
		return nil
	}

	cfg, err := layeredConfig(probe.configFile)
	if err != nil {
		return err
	}
	var opts cliOptions
	fs = newFlagSet(cfg, &opts)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.Changed("timeout") {
		cfg.Timeout = time.Duration(opts.timeoutSec) * time.Second
	}
	if fs.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	cfg.ConfigFile = opts.configFile

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec + validate ───────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(stderr)
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		return err
	}
	logger.Install()

	collector := metrics.New()
	mode, err := core.Build(cfg, logger, collector)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		return printPlan(ctx, cfg, mode)
	}
	bindOutput(mode)

	err = mode.Run(ctx)
	if cfg.Stats {
		fmt.Fprintln(stderr, collector.JSON())
	}
	return err
}

// layeredConfig returns defaults overlaid with the config file (from
// --config or SSLCAT_CONFIG) and then the environment.
func layeredConfig(path string) (*config.Config, error) {
	cfg := config.Defaults()
	if path == "" {
		path = config.ConfigPathFromEnv()
	}
	if path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

// newFlagSet binds every flag to cfg, using cfg's current values as
// the defaults.
func newFlagSet(cfg *config.Config, o *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("sslcat", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── connection ───────────────────────────────────────────────
	fs.IntVarP(&cfg.LocalPort, "port", "p", cfg.LocalPort, "Local source port")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")
	fs.IntVarP(&o.timeoutSec, "timeout", "w", int(cfg.Timeout/time.Second), "Deadline for the whole run in seconds (0 = none)")
	fs.DurationVar(&cfg.ConnTimeout, "connect-timeout", cfg.ConnTimeout, "TCP/SSH connect timeout")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Retry transient network failures this many times")

	// ── TLS ──────────────────────────────────────────────────────
	fs.StringVar(&cfg.ServerName, "servername", cfg.ServerName, "Name for SNI and certificate verification (default: host)")
	fs.StringVar(&cfg.CAFile, "ca-file", cfg.CAFile, "PEM bundle replacing the system roots")
	fs.StringVar(&cfg.TLSVersion, "tls-version", cfg.TLSVersion, "Pin the protocol version (1.0, 1.1, 1.2, 1.3)")
	fs.StringSliceVar(&cfg.ALPN, "alpn", cfg.ALPN, "ALPN protocols to offer (repeatable or comma separated)")

	// ── request ──────────────────────────────────────────────────
	fs.StringVarP(&cfg.Request, "request", "r", cfg.Request, `Send this request and print the response (escapes: \r \n \t \\ \0 \xHH)`)
	fs.StringVarP(&cfg.GetPath, "get", "g", cfg.GetPath, "Shorthand for an HTTP/1.0 GET of PATH")

	// ── execution ────────────────────────────────────────────────
	fs.StringVarP(&cfg.Execute, "exec", "e", cfg.Execute, "Execute program after the handshake")
	fs.StringVarP(&cfg.Command, "command", "c", cfg.Command, "Execute shell command after the handshake")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "SSH keepalive interval (0 disables)")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&o.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log handler: cli, text or json")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "Print TLS metrics as JSON on exit")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate and print the plan without connecting")
	fs.StringVar(&o.configFile, "config", "", "YAML config file (default: $SSLCAT_CONFIG)")

	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&o.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }
	return fs
}

// ── helpers ──────────────────────────────────────────────────────────

func bindOutput(mode core.Mode) {
	switch m := mode.(type) {
	case *core.FetchMode:
		m.Stdout = stdout
	case *core.ConnectMode:
		m.Stdout = stdout
	}
}

// parsePositional reads "host [port]"; the port keeps its configured
// value (443 by default) when omitted.
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0: // host may come from the config file or SSLCAT_HOST
	case 1:
		cfg.Host = remaining[0]
	case 2:
		cfg.Host = remaining[0]
		port, err := config.ParsePort(remaining[1])
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Port = port
	default:
		return fmt.Errorf("too many arguments: %s", strings.Join(remaining[2:], " "))
	}
	return nil
}

// printPlan describes what a run would do.  Names are resolved locally
// unless they would be resolved by the SSH gateway.
func printPlan(ctx context.Context, cfg *config.Config, mode core.Mode) error {
	w := stdout
	switch m := mode.(type) {
	case *core.FetchMode:
		fmt.Fprintf(w, "mode:      fetch (%d byte request)\n", len(m.Request))
		fmt.Fprintf(w, "address:   %s\n", m.Address)
	case *core.ConnectMode:
		fmt.Fprintf(w, "mode:      %s\n", capabilityName(cfg))
		fmt.Fprintf(w, "address:   %s\n", m.Address)
	}
	fmt.Fprintf(w, "sni:       %s\n", cfg.SNI())
	fmt.Fprintf(w, "backend:   %s\n", ssl.DefaultBackend().Name())
	if cfg.TLSVersion != "" {
		fmt.Fprintf(w, "version:   %s\n", cfg.TLSVersion)
	}
	if len(cfg.ALPN) > 0 {
		fmt.Fprintf(w, "alpn:      %s\n", strings.Join(cfg.ALPN, ","))
	}

	if cfg.TunnelEnabled {
		fmt.Fprintf(w, "tunnel:    %s@%s:%d\n", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
		return nil
	}
	addrs, err := util.LookupHost(ctx, cfg.Host, cfg.NoDNS)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "resolved:  %s\n", strings.Join(addrs, ", "))
	return nil
}

func capabilityName(cfg *config.Config) string {
	switch {
	case cfg.Execute != "":
		return "exec " + cfg.Execute
	case cfg.Command != "":
		return "shell " + cfg.Command
	default:
		return "relay"
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `sslcat – TLS client for the command line v%s

Connects to a TLS server and either relays stdin/stdout over the secure
stream or sends one request and prints the response.

Usage:
  sslcat [options] <host> [port]               Interactive relay (port 443)
  sslcat --get / <host> [port]                 Fetch one HTTP/1.0 page
  sslcat -r 'PING\r\n' <host> <port>           Fetch with a raw request
  sslcat -T user@gateway <host> [port]         Through an SSH tunnel

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  sslcat example.com                            Talk TLS to example.com:443
  sslcat --get /index.html example.com          Print the raw HTTP response
  sslcat --ca-file ca.pem --servername api internal-lb 8443
  sslcat -T admin@bastion db-internal 5432      TLS via SSH gateway
  sslcat -c 'cat /etc/motd' example.com 9443    Serve a command over TLS

Environment:
  SSLCAT_CONFIG and SSLCAT_* override config file values; flags win.
`)
}
