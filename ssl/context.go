package ssl

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/net/idna"
)

// Observer receives counters from contexts, streams and pipelines.  It
// is called synchronously from the owning goroutine.
type Observer interface {
	HandshakeDone(backend string, elapsed time.Duration, err error)
	BytesSent(n int64)
	BytesReceived(n int64)
	Suspended(interest Interest)
}

type nopObserver struct{}

func (nopObserver) HandshakeDone(string, time.Duration, error) {}
func (nopObserver) BytesSent(int64)                            {}
func (nopObserver) BytesReceived(int64)                        {}
func (nopObserver) Suspended(Interest)                         {}

// ErrInvalidTLSVersion indicates an unknown version name.
var ErrInvalidTLSVersion = errors.New("invalid TLS version")

// Option configures a ClientContext.
type Option func(*options)

type options struct {
	backend    Backend
	rootCAs    *x509.CertPool
	nextProtos []string
	tlsVersion string
	logger     log.Interface
	observer   Observer
	id         string
}

// WithBackend overrides the compiled-in backend.
func WithBackend(b Backend) Option { return func(o *options) { o.backend = b } }

// WithRootCAs sets the trust anchors; nil means the system pool.
func WithRootCAs(pool *x509.CertPool) Option { return func(o *options) { o.rootCAs = pool } }

// WithNextProtos sets the ALPN protocols offered to the server.
func WithNextProtos(protos ...string) Option {
	return func(o *options) { o.nextProtos = append([]string(nil), protos...) }
}

// WithTLSVersion pins the protocol version: "TLSv1.3", "TLSv1.2",
// "TLSv1.1", "TLSv1.0" (or "TLSv1").  The empty string keeps the
// backend defaults.
func WithTLSVersion(version string) Option { return func(o *options) { o.tlsVersion = version } }

// WithLogger sets where structured events go (default log.Log).
func WithLogger(l log.Interface) Option { return func(o *options) { o.logger = l } }

// WithObserver attaches a metrics sink.
func WithObserver(obs Observer) Option { return func(o *options) { o.observer = obs } }

// WithID sets the correlation id logged with every event.
func WithID(id string) Option { return func(o *options) { o.id = id } }

// ClientContext is the per-connection TLS configuration bound to one
// expected hostname.  It drives at most one handshake and cannot be
// reused.
type ClientContext struct {
	hostname string
	backend  Backend
	session  Session
	logger   log.Interface
	observer Observer
	id       string

	used  atomic.Bool
	state atomic.Int32
}

// NewClientContext builds a fresh context for hostname.  Failures to
// validate the hostname or to initialise the backend are reported as
// KindHandshakeFailed.
func NewClientContext(hostname string, opts ...Option) (*ClientContext, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend == nil {
		o.backend = DefaultBackend()
	}
	if o.logger == nil {
		o.logger = log.Log
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	name := o.backend.Name()

	serverName, err := normalizeHostname(hostname)
	if err != nil {
		return nil, &Error{Kind: KindHandshakeFailed, Reason: err.Error(), Op: "context", Backend: name, Err: err}
	}

	cfg := &SessionConfig{
		ServerName: serverName,
		RootCAs:    o.rootCAs,
		NextProtos: o.nextProtos,
	}
	if err := configureTLSVersion(cfg, o.tlsVersion); err != nil {
		return nil, &Error{Kind: KindHandshakeFailed, Reason: err.Error() + " " + o.tlsVersion, Op: "context", Backend: name, Err: err}
	}

	sess, err := o.backend.NewSession(cfg)
	if err != nil {
		return nil, &Error{Kind: KindHandshakeFailed, Reason: "backend init: " + err.Error(), Op: "context", Backend: name, Err: err}
	}

	return &ClientContext{
		hostname: serverName,
		backend:  o.backend,
		session:  sess,
		logger:   o.logger,
		observer: o.observer,
		id:       o.id,
	}, nil
}

// Hostname returns the normalized name certificates are checked against.
func (c *ClientContext) Hostname() string { return c.hostname }

// ID returns the correlation id.
func (c *ClientContext) ID() string { return c.id }

// BackendName returns the name of the engine driving this context.
func (c *ClientContext) BackendName() string { return c.backend.Name() }

// State returns the handshake state.
func (c *ClientContext) State() HandshakeState { return HandshakeState(c.state.Load()) }

func (c *ClientContext) fields() log.Fields {
	return log.Fields{"id": c.id, "backend": c.backend.Name(), "sni": c.hostname}
}

// normalizeHostname returns the ASCII form of host used both as SNI and
// as the verification target.  IP literals are kept verbatim.
func normalizeHostname(host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return "", errors.New("empty hostname")
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", errors.New("invalid hostname " + host + ": " + err.Error())
	}
	return ascii, nil
}

// configureTLSVersion pins cfg to a single protocol version.
func configureTLSVersion(cfg *SessionConfig, version string) error {
	switch version {
	case "TLSv1.3":
		cfg.MinVersion, cfg.MaxVersion = tls.VersionTLS13, tls.VersionTLS13
	case "TLSv1.2":
		cfg.MinVersion, cfg.MaxVersion = tls.VersionTLS12, tls.VersionTLS12
	case "TLSv1.1":
		cfg.MinVersion, cfg.MaxVersion = tls.VersionTLS11, tls.VersionTLS11
	case "TLSv1.0", "TLSv1":
		cfg.MinVersion, cfg.MaxVersion = tls.VersionTLS10, tls.VersionTLS10
	case "":
	default:
		return ErrInvalidTLSVersion
	}
	return nil
}
