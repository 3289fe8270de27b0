package ssl

import "context"

// Interest selects the readiness condition a caller waits for.
type Interest int

const (
	Readable Interest = iota + 1
	Writable
)

func (i Interest) String() string {
	switch i {
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	default:
		return "invalid"
	}
}

// Transport is a non-blocking byte stream.  Read and Write return
// ErrWouldBlock instead of waiting; Read reports a clean close by the
// peer as io.EOF.  Await suspends the caller until the stream is
// probably ready for the given interest or ctx is done, and is the only
// place where this package waits.
//
// A Transport is owned by exactly one stage at a time.  Conn is the one
// exception to single-goroutine use: a reader and a writer may await
// different interests at once, and Close must wake both.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Await(ctx context.Context, interest Interest) error
	Close() error
}
