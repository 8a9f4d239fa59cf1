// Package multiplex is the QueryMultiplexer: the only component that
// touches the socket once the handshake has completed. It maintains
// the connection state, the token -> waiter in-flight map, and the
// single serialization lane through which every socket write and
// every map mutation passes, and drives the read loop that
// demultiplexes server replies back to their waiters.
package multiplex

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/hasirciogluhq/rethinkconn/internal/decode"
	"github.com/hasirciogluhq/rethinkconn/internal/rerr"
	"github.com/hasirciogluhq/rethinkconn/internal/stream"
	"github.com/hasirciogluhq/rethinkconn/internal/token"
	"github.com/hasirciogluhq/rethinkconn/internal/wire"
)

// Waiter is an alias for decode.Waiter so multiplex callers don't need
// to import the decode package just to reference the type.
type Waiter = decode.Waiter

// State is the Connection's lifecycle state.
type State int32

const (
	StateUnconnected State = iota
	StateHandshakeSent
	StateConnected
	StateErrored
	StateTerminated
)

// Connection owns one TCP socket post-handshake. The socket is read by
// at most one logical reader (the read loop); all writes and all
// in-flight map mutations are serialized through lane.
type Connection struct {
	stream *stream.Stream
	alloc  *token.Allocator

	state atomic.Int32

	lane     sync.Mutex // serializes socket writes and inflight mutations
	inflight map[uint64]Waiter

	errMu   sync.Mutex
	lastErr error

	readLoopDone chan struct{}
}

// New constructs a Connection ready to have Start called on it. The
// stream must already have completed its handshake.
func New(s *stream.Stream, alloc *token.Allocator) *Connection {
	c := &Connection{
		stream:       s,
		alloc:        alloc,
		inflight:     make(map[uint64]Waiter),
		readLoopDone: make(chan struct{}),
	}
	c.state.Store(int32(StateConnected))
	return c
}

// Start launches the read loop. Call once, after construction.
func (c *Connection) Start() {
	go c.readLoop()
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// LastError returns the error that moved the connection to Errored, if any.
func (c *Connection) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// StartQuery allocates a token, registers the waiter only after the
// write succeeds, and sends a START frame. Precondition: Connected.
func (c *Connection) StartQuery(payload []byte, w Waiter) (uint64, error) {
	tok, err := c.alloc.Next()
	if err != nil {
		return 0, err
	}
	if err := c.sendAndRegister(tok, payload, w); err != nil {
		return 0, err
	}
	return tok, nil
}

// continueQuery sends a CONTINUE frame for an existing token and
// replaces the waiter entry. Used by Continuation.Next.
func (c *Connection) continueQuery(tok uint64, w Waiter) error {
	payload, _ := json.Marshal([]int{wire.QueryContinue})
	return c.sendAndRegister(tok, payload, w)
}

// StopQuery sends a STOP frame for an existing token. The server's
// terminal reply removes the entry via the read loop.
func (c *Connection) StopQuery(tok uint64) error {
	payload, _ := json.Marshal([]int{wire.QueryStop})

	c.lane.Lock()

	if c.State() != StateConnected {
		c.lane.Unlock()
		return &rerr.NotConnectedError{}
	}
	frame := wire.EncodeFrame(tok, payload)
	if err := c.stream.Write(frame); err != nil {
		c.fail(err) // releases c.lane
		return err
	}
	c.lane.Unlock()
	return nil
}

func (c *Connection) sendAndRegister(tok uint64, payload []byte, w Waiter) error {
	c.lane.Lock()

	if c.State() != StateConnected {
		c.lane.Unlock()
		return &rerr.NotConnectedError{}
	}
	frame := wire.EncodeFrame(tok, payload)
	if err := c.stream.Write(frame); err != nil {
		c.fail(err) // releases c.lane
		return err
	}
	// Registration strictly after the write succeeds: a reply can never
	// be demultiplexed to a waiter that isn't installed yet.
	c.inflight[tok] = w
	c.lane.Unlock()
	return nil
}

// Close is idempotent: sets state Terminated, clears the in-flight
// map (notifying each remaining waiter), and closes the socket.
func (c *Connection) Close() error {
	c.lane.Lock()
	if c.State() == StateTerminated || c.State() == StateErrored {
		c.lane.Unlock()
		return nil
	}
	c.state.Store(int32(StateTerminated))
	waiters := c.inflight
	c.inflight = make(map[uint64]Waiter)
	c.lane.Unlock()

	for _, w := range waiters {
		w.Deliver(decode.Envelope{}, &rerr.NotConnectedError{})
	}
	return c.stream.Close()
}

// fail transitions the connection to Errored and drains every
// remaining in-flight waiter with a disconnect error. Callers must
// hold the lane before calling fail; fail always releases it before
// returning, and in particular before delivering to any waiter —
// matching Close and dispatch — so a waiter reacting to the error by
// calling back into the connection can't deadlock on the lane.
func (c *Connection) fail(cause error) {
	if c.State() == StateTerminated {
		// Already torn down by an explicit Close; nothing left to drain.
		c.lane.Unlock()
		return
	}

	c.errMu.Lock()
	alreadyFailed := c.lastErr != nil
	if !alreadyFailed {
		c.lastErr = cause
	}
	c.errMu.Unlock()
	if alreadyFailed {
		c.lane.Unlock()
		return
	}

	c.state.Store(int32(StateErrored))

	waiters := c.inflight
	c.inflight = make(map[uint64]Waiter)
	c.lane.Unlock()

	ioErr := &rerr.IoError{Cause: fmt.Errorf("%s: %w", rerr.Disconnected, cause)}
	for _, w := range waiters {
		w.Deliver(decode.Envelope{}, ioErr)
	}
	c.stream.Close()
}

func (c *Connection) readLoop() {
	defer close(c.readLoopDone)
	for {
		if c.State() != StateConnected {
			return
		}

		header, err := c.stream.ReadExact(wire.HeaderLen)
		if err != nil {
			c.failLocked(err)
			return
		}
		tok, length := wire.DecodeHeader(header)

		payload, err := c.stream.ReadExact(int(length))
		if err != nil {
			c.failLocked(err)
			return
		}

		env, err := decode.Decode(payload)
		if err != nil {
			c.failLocked(err)
			return
		}

		c.dispatch(tok, env)
	}
}

// failLocked acquires the lane before calling fail, since the read
// loop never otherwise holds it. fail releases the lane itself.
func (c *Connection) failLocked(cause error) {
	c.lane.Lock()
	c.fail(cause)
}

func (c *Connection) dispatch(tok uint64, env decode.Envelope) {
	c.lane.Lock()
	w, ok := c.inflight[tok]
	if !ok {
		c.lane.Unlock()
		log.Warn().Uint64("token", tok).Msg("dropped response for unknown token")
		return
	}
	if env.IsTerminal() {
		delete(c.inflight, tok)
	}
	c.lane.Unlock()

	if env.Kind == decode.KindRows && env.More {
		env.Continuation = newContinuation(c, tok)
	}

	w.Deliver(env, nil)
}
