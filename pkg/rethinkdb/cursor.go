package rethinkdb

import (
	"encoding/json"
	"errors"

	"github.com/hasirciogluhq/rethinkconn/internal/decode"
)

// Cursor iterates the rows of a (possibly multi-batch) query result
// one at a time, fetching the next batch from the server only once the
// current one is exhausted.
type Cursor struct {
	conn  *Connection
	token uint64

	cur Envelope
	idx int

	closed bool
	err    error
}

// Next decodes the next row into dest, which must be a pointer, and
// reports whether a row was available. Once it returns false, Err
// reports why iteration stopped (nil at a clean end-of-sequence).
func (c *Cursor) Next(dest interface{}) bool {
	if c.err != nil || c.closed {
		return false
	}

	for {
		switch c.cur.Kind {
		case decode.KindErrorEnvelope:
			c.err = &QueryError{Kind: c.cur.ErrKind, Message: c.cur.ErrMessage}
			return false
		case decode.KindValue:
			if c.idx > 0 {
				return false
			}
			c.idx++
			return c.unmarshalInto(c.cur.Value, dest)
		case decode.KindRows:
			if c.idx < len(c.cur.Rows) {
				row := c.cur.Rows[c.idx]
				c.idx++
				return c.unmarshalInto(row, dest)
			}
			if !c.cur.More || c.cur.Continuation == nil {
				return false
			}
			if !c.fetchNextBatch() {
				return false
			}
			continue
		default:
			return false
		}
	}
}

func (c *Cursor) fetchNextBatch() bool {
	ch := make(chanWaiter, 1)
	if err := c.cur.Continuation.Next(ch); err != nil {
		c.err = err
		return false
	}
	r := <-ch
	if r.err != nil {
		c.err = r.err
		return false
	}
	c.cur = r.env
	c.idx = 0
	return true
}

func (c *Cursor) unmarshalInto(v decode.Value, dest interface{}) bool {
	raw, err := valueToJSON(v)
	if err != nil {
		c.err = err
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.err = err
		return false
	}
	return true
}

// One decodes the sole result of a non-streaming query into dest. It
// is a convenience for queries known to return a single atom.
func (c *Cursor) One(dest interface{}) error {
	if !c.Next(dest) {
		if c.err != nil {
			return c.err
		}
		return errors.New("rethinkdb: cursor exhausted with no result")
	}
	return nil
}

// Err reports the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close stops the underlying query if it hasn't already run to
// completion. Safe to call multiple times.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cur.Kind == decode.KindRows && c.cur.More {
		return c.conn.StopQuery(c.token)
	}
	return nil
}

// valueToJSON re-serializes a decoded Value back into JSON so callers
// can unmarshal rows into their own Go types via the standard library,
// the same way the decoded datum tree was built from JSON.
func valueToJSON(v decode.Value) ([]byte, error) {
	return json.Marshal(valueToAny(v))
}

func valueToAny(v decode.Value) interface{} {
	switch v.Kind {
	case decode.KindNull:
		return nil
	case decode.KindBool:
		return v.Bool
	case decode.KindNumber:
		return v.Number
	case decode.KindString:
		return v.String
	case decode.KindBytes:
		return v.Bytes
	case decode.KindTime:
		return v.Time
	case decode.KindArray:
		out := make([]interface{}, len(v.Array))
		for i, e := range v.Array {
			out[i] = valueToAny(e)
		}
		return out
	case decode.KindObject:
		out := make(map[string]interface{}, len(v.Object))
		for k, e := range v.Object {
			out[k] = valueToAny(e)
		}
		return out
	default:
		return nil
	}
}
