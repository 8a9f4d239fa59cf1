package multiplex

import (
	"sync/atomic"

	"github.com/hasirciogluhq/rethinkconn/internal/decode"
	"github.com/hasirciogluhq/rethinkconn/internal/rerr"
)

// continuation is the handle the read loop attaches to a partial
// (streaming) Rows envelope. Invoking it exactly once sends a CONTINUE
// frame for the original token with a new waiter; a second invocation
// is a programming error.
type continuation struct {
	conn  *Connection
	token uint64
	used  atomic.Bool
}

func newContinuation(conn *Connection, tok uint64) decode.Continuation {
	return &continuation{conn: conn, token: tok}
}

// Next requests the next batch. Implements decode.Continuation.
func (c *continuation) Next(w decode.Waiter) error {
	if !c.used.CompareAndSwap(false, true) {
		return &rerr.ContinuationMisuseError{}
	}
	return c.conn.continueQuery(c.token, w)
}
