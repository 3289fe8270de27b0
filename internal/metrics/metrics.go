// Package metrics provides lightweight, lock-free counters for tracking
// the TLS activity of an sslcat run.  Collector satisfies ssl.Observer,
// so the library feeds it directly.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"sslcat/ssl"
)

// Collector tracks runtime metrics for one sslcat run.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	handshakesOK      atomic.Int64
	handshakesFailed  atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	awaitsRead        atomic.Int64
	awaitsWrite       atomic.Int64
	retries           atomic.Int64
	errorsTotal       atomic.Int64

	mu            sync.RWMutex
	startTime     time.Time
	handshakeTime time.Duration // sum over successful handshakes
	backend       string
	failures      map[string]int64 // by ssl.ErrorKind
	lastError     time.Time
	lastErrorMsg  string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now(), failures: make(map[string]int64)}
}

var _ ssl.Observer = (*Collector)(nil)

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── Handshakes ───────────────────────────────────────────────────────

// HandshakeDone records one finished handshake.  Failures are counted
// per canonical error kind.
func (c *Collector) HandshakeDone(backend string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = backend
	if err != nil {
		c.handshakesFailed.Add(1)
		c.failures[ssl.KindOf(err).String()]++
		return
	}
	c.handshakesOK.Add(1)
	c.handshakeTime += elapsed
}

// Handshakes returns the successful and failed handshake counts.
func (c *Collector) Handshakes() (ok, failed int64) {
	if c == nil {
		return 0, 0
	}
	return c.handshakesOK.Load(), c.handshakesFailed.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n plaintext bytes read from the peer.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n plaintext bytes written to the peer.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// Suspended counts one wait on the transport.
func (c *Collector) Suspended(interest ssl.Interest) {
	if c == nil {
		return
	}
	if interest == ssl.Writable {
		c.awaitsWrite.Add(1)
		return
	}
	c.awaitsRead.Add(1)
}

// ── Retries and errors ───────────────────────────────────────────────

// RecordRetry counts one more attempt after a retryable failure.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.retries.Add(1)
}

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string           `json:"uptime"`
	Backend           string           `json:"backend,omitempty"`
	ConnectionsActive int64            `json:"connections_active"`
	ConnectionsTotal  int64            `json:"connections_total"`
	HandshakesOK      int64            `json:"handshakes_ok"`
	HandshakesFailed  int64            `json:"handshakes_failed"`
	HandshakeAvg      string           `json:"handshake_avg,omitempty"`
	Failures          map[string]int64 `json:"failures,omitempty"`
	BytesIn           int64            `json:"bytes_in"`
	BytesOut          int64            `json:"bytes_out"`
	AwaitsReadable    int64            `json:"awaits_readable"`
	AwaitsWritable    int64            `json:"awaits_writable"`
	Retries           int64            `json:"retries"`
	ErrorsTotal       int64            `json:"errors_total"`
	LastError         string           `json:"last_error,omitempty"`
	LastErrorMessage  string           `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Millisecond).String(),
		Backend:           c.backend,
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		HandshakesOK:      c.handshakesOK.Load(),
		HandshakesFailed:  c.handshakesFailed.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		AwaitsReadable:    c.awaitsRead.Load(),
		AwaitsWritable:    c.awaitsWrite.Load(),
		Retries:           c.retries.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if s.HandshakesOK > 0 {
		s.HandshakeAvg = (c.handshakeTime / time.Duration(s.HandshakesOK)).String()
	}
	if len(c.failures) > 0 {
		s.Failures = make(map[string]int64, len(c.failures))
		for k, v := range c.failures {
			s.Failures[k] = v
		}
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
