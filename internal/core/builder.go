package core

import (
	"context"
	"crypto/x509"
	"os"
	"time"

	"sslcat/config"
	"sslcat/internal/capability"
	ncerr "sslcat/internal/errors"
	"sslcat/internal/metrics"
	"sslcat/internal/retry"
	"sslcat/internal/transport"
	"sslcat/ssl"
	"sslcat/tunnel"
	"sslcat/util"
)

// Build constructs the Mode for cfg: a FetchMode when a request was
// given, otherwise an interactive ConnectMode.  cfg must have been
// validated.  collector may be nil.
func Build(cfg *config.Config, logger *util.Logger, collector *metrics.Collector) (Mode, error) {
	address, err := util.ResolveAddr(cfg.Host, cfg.Port, cfg.NoDNS)
	if err != nil {
		return nil, &ncerr.ConfigError{Field: "no-dns", Value: cfg.Host, Message: err.Error()}
	}
	opts, err := tlsOptions(cfg, logger, collector)
	if err != nil {
		return nil, err
	}

	if cfg.FetchMode() {
		req, err := cfg.RequestBytes()
		if err != nil {
			return nil, err
		}
		return &FetchMode{
			Dialer:   buildDialer(cfg, logger),
			Address:  address,
			Hostname: cfg.SNI(),
			Request:  req,
			Options:  opts,
			Backoff:  buildBackoff(cfg, logger, collector),
			Timeout:  cfg.Timeout,
			Metrics:  collector,
			Logger:   logger,
		}, nil
	}

	return &ConnectMode{
		Dialer:     buildDialer(cfg, logger),
		Capability: buildCapability(cfg),
		Address:    address,
		Hostname:   cfg.SNI(),
		Options:    opts,
		Backoff:    buildBackoff(cfg, logger, collector),
		Timeout:    cfg.Timeout,
		Metrics:    collector,
		Logger:     logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnTimeout,
			KeepAlive:     cfg.KeepAlive,
		}, logger)
	}
	return &transport.TCPDialer{
		Timeout:   cfg.ConnTimeout,
		LocalPort: cfg.LocalPort,
	}
}

// buildCapability selects what runs over an interactive session.
func buildCapability(cfg *config.Config) capability.Capability {
	if cfg.Execute != "" || cfg.Command != "" {
		return &capability.Exec{
			Program: cfg.Execute,
			Command: cfg.Command,
		}
	}
	return &capability.Relay{}
}

// tlsOptions translates the TLS section of cfg into ssl options.
func tlsOptions(cfg *config.Config, logger *util.Logger, collector *metrics.Collector) ([]ssl.Option, error) {
	opts := []ssl.Option{ssl.WithLogger(logger.Interface())}
	if collector != nil {
		opts = append(opts, ssl.WithObserver(collector))
	}
	if cfg.CAFile != "" {
		pool, err := loadCAFile(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ssl.WithRootCAs(pool))
	}
	if cfg.TLSVersion != "" {
		opts = append(opts, ssl.WithTLSVersion(cfg.TLSVersion))
	}
	if len(cfg.ALPN) > 0 {
		opts = append(opts, ssl.WithNextProtos(cfg.ALPN...))
	}
	return opts, nil
}

func loadCAFile(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ncerr.ConfigError{Field: "ca-file", Value: path, Message: err.Error()}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, &ncerr.ConfigError{Field: "ca-file", Value: path,
			Message: "no PEM certificates found"}
	}
	return pool, nil
}

// buildBackoff returns nil when retries are disabled.
func buildBackoff(cfg *config.Config, logger *util.Logger, collector *metrics.Collector) *retry.Backoff {
	if cfg.Retries <= 0 {
		return nil
	}
	b := retry.DefaultBackoff()
	b.MaxAttempts = cfg.Retries + 1
	b.Retryable = shouldRetry
	b.OnRetry = func(attempt int, wait time.Duration, err error) {
		collector.RecordRetry()
		logger.Warn("attempt %d failed: %v (retrying in %s)", attempt, err, wait.Truncate(time.Millisecond))
	}
	return b
}

// shouldRetry accepts transient transport failures only; a peer that
// failed verification or a gateway that rejected us will do so again.
func shouldRetry(err error) bool {
	return !ncerr.IsPermanent(err) && ncerr.IsRetryable(err)
}

// withRetries runs fn once, or under b when retries are enabled.
func withRetries(ctx context.Context, b *retry.Backoff, fn func(n int) error) error {
	if b == nil {
		return fn(1)
	}
	return b.Do(ctx, fn)
}
