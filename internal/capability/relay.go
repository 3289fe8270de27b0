package capability

import (
	"context"

	"sslcat/internal/session"
	"sslcat/util"
)

// Relay copies plaintext between the connection and the session's
// stdin/stdout.  End of stdin sends close_notify; the relay ends when
// the peer closes.
type Relay struct{}

func (r *Relay) Handle(ctx context.Context, sess *session.Session) error {
	return util.BidirectionalCopy(ctx, sess.Conn, sess.Stdin, sess.Stdout)
}
