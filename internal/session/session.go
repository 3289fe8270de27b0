// Package session binds one established TLS connection to the local
// I/O endpoints a capability works against.
package session

import (
	"io"

	"sslcat/ssl"
	"sslcat/util"
)

// Session is the runtime context for a single connection.  Conn is
// usually an *ssl.Conn; tests substitute anything that reads, writes
// and closes.
type Session struct {
	Conn   io.ReadWriteCloser
	State  ssl.ConnectionState
	Stdin  io.Reader
	Stdout io.Writer
	Logger *util.Logger
}

// New creates a Session bound to conn and the given I/O pair.  When
// conn is an *ssl.Conn its negotiated state is recorded.
func New(conn io.ReadWriteCloser, stdin io.Reader, stdout io.Writer, logger *util.Logger) *Session {
	s := &Session{
		Conn:   conn,
		Stdin:  stdin,
		Stdout: stdout,
		Logger: logger,
	}
	if c, ok := conn.(*ssl.Conn); ok {
		s.State = c.Stream().ConnectionState()
	}
	return s
}
