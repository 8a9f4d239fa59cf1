package rethinkdb

import (
	"encoding/json"

	"github.com/hasirciogluhq/rethinkconn/internal/decode"
	"github.com/hasirciogluhq/rethinkconn/internal/multiplex"
	"github.com/hasirciogluhq/rethinkconn/internal/wire"
)

// Connection is one authenticated, query-ready channel to the server.
type Connection struct {
	inner *multiplex.Connection
}

// Connected reports whether the connection can currently accept new queries.
func (c *Connection) Connected() bool {
	return c.inner.State() == multiplex.StateConnected
}

// Err returns the error that moved the connection to its errored
// state, if any.
func (c *Connection) Err() error {
	return c.inner.LastError()
}

// Close idempotently tears the connection down.
func (c *Connection) Close() error {
	return c.inner.Close()
}

// StartQuery sends a START query built from term/opts and delivers
// responses to w, possibly more than once if the query streams.
// jsonPayload is the 2- or 3-element query array produced by the term
// builder: [START, term, opts?].
func (c *Connection) StartQuery(jsonPayload []byte, w Waiter) (uint64, error) {
	return c.inner.StartQuery(jsonPayload, w)
}

// StopQuery cancels a streaming query by token.
func (c *Connection) StopQuery(token uint64) error {
	return c.inner.StopQuery(token)
}

type chanResult struct {
	env Envelope
	err error
}

type chanWaiter chan chanResult

func (w chanWaiter) Deliver(env decode.Envelope, err error) {
	w <- chanResult{env: env, err: err}
}

// Run sends jsonPayload as a START query and blocks for the first
// response. For a streaming query, the returned Envelope carries a
// Continuation the caller can use to fetch further batches, or the
// returned Cursor can be used instead via RunCursor.
func (c *Connection) Run(jsonPayload []byte) (Envelope, error) {
	ch := make(chanWaiter, 1)
	if _, err := c.inner.StartQuery(jsonPayload, ch); err != nil {
		return Envelope{}, err
	}
	r := <-ch
	return r.env, r.err
}

// RunCursor sends jsonPayload as a START query and wraps the result in
// a Cursor for row-at-a-time iteration across partial batches.
func (c *Connection) RunCursor(jsonPayload []byte) (*Cursor, error) {
	ch := make(chanWaiter, 1)
	tok, err := c.inner.StartQuery(jsonPayload, ch)
	if err != nil {
		return nil, err
	}
	r := <-ch
	if r.err != nil {
		return nil, r.err
	}
	return &Cursor{conn: c, token: tok, cur: r.env}, nil
}

// noreplyWaitPayload and serverInfoPayload build the fixed-shape
// payloads for the two argument-less query types.
func noreplyWaitPayload() []byte {
	b, _ := json.Marshal([]int{wire.QueryNoReplyWait})
	return b
}

func serverInfoPayload() []byte {
	b, _ := json.Marshal([]int{wire.QueryServerInfo})
	return b
}

// NoReplyWait blocks until every previously started noreply query has
// been acknowledged by the server.
func (c *Connection) NoReplyWait() error {
	_, err := c.Run(noreplyWaitPayload())
	return err
}

// ServerInfo returns the decoded SERVER_INFO atom.
func (c *Connection) ServerInfo() (Value, error) {
	env, err := c.Run(serverInfoPayload())
	if err != nil {
		return Value{}, err
	}
	return env.Value, nil
}
