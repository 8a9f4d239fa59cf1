package multiplex

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/hasirciogluhq/rethinkconn/internal/decode"
	"github.com/hasirciogluhq/rethinkconn/internal/rerr"
	"github.com/hasirciogluhq/rethinkconn/internal/stream"
	"github.com/hasirciogluhq/rethinkconn/internal/token"
)

// readFrame and writeFrame let the test play the server side of the
// wire protocol directly, without going through handshake.
func readFrame(t *testing.T, conn net.Conn) (uint64, []byte) {
	t.Helper()
	header := make([]byte, 12)
	if _, err := readFull(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	tok := binary.LittleEndian.Uint64(header[:8])
	length := binary.LittleEndian.Uint32(header[8:12])
	payload := make([]byte, length)
	if _, err := readFull(conn, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return tok, payload
}

func writeFrame(t *testing.T, conn net.Conn, tok uint64, payload []byte) {
	t.Helper()
	out := make([]byte, 12+len(payload))
	binary.LittleEndian.PutUint64(out[:8], tok)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(payload)))
	copy(out[12:], payload)
	if _, err := conn.Write(out); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type chanWaiter chan struct {
	env decode.Envelope
	err error
}

func (w chanWaiter) Deliver(env decode.Envelope, err error) {
	w <- struct {
		env decode.Envelope
		err error
	}{env, err}
}

func newConn(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	// A loopback TCP pair rather than net.Pipe: StartQuery's write must
	// complete before the test reads the frame on the server side, which
	// needs the kernel's socket buffering.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	c := New(stream.New(client), token.New())
	c.Start()
	return c, server
}

func TestTrivialQueryRoundTrip(t *testing.T) {
	c, server := newConn(t)
	defer server.Close()

	w := make(chanWaiter, 1)
	tok, err := c.StartQuery([]byte(`[1,[1,2]]`), w)
	if err != nil {
		t.Fatalf("StartQuery: %v", err)
	}

	gotTok, payload := readFrame(t, server)
	if gotTok != tok {
		t.Fatalf("server saw token %x, want %x", gotTok, tok)
	}
	if string(payload) != `[1,[1,2]]` {
		t.Fatalf("server saw payload %s", payload)
	}

	resp, _ := json.Marshal(map[string]interface{}{"t": 1, "r": []interface{}{3}})
	writeFrame(t, server, tok, resp)

	res := <-w
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	if res.env.Kind != decode.KindValue || res.env.Value.Number != 3 {
		t.Fatalf("got %+v", res.env)
	}
}

func TestMultiplexedQueriesDemuxByToken(t *testing.T) {
	c, server := newConn(t)
	defer server.Close()

	w1 := make(chanWaiter, 1)
	w2 := make(chanWaiter, 1)
	tok1, err := c.StartQuery([]byte(`[1,1]`), w1)
	if err != nil {
		t.Fatalf("StartQuery 1: %v", err)
	}
	tok2, err := c.StartQuery([]byte(`[1,2]`), w2)
	if err != nil {
		t.Fatalf("StartQuery 2: %v", err)
	}
	if tok1 == tok2 {
		t.Fatal("expected distinct tokens")
	}

	readFrame(t, server)
	readFrame(t, server)

	resp2, _ := json.Marshal(map[string]interface{}{"t": 1, "r": []interface{}{"second"}})
	writeFrame(t, server, tok2, resp2)
	resp1, _ := json.Marshal(map[string]interface{}{"t": 1, "r": []interface{}{"first"}})
	writeFrame(t, server, tok1, resp1)

	r2 := <-w2
	if r2.env.Value.String != "second" {
		t.Fatalf("w2 got %+v", r2.env)
	}
	r1 := <-w1
	if r1.env.Value.String != "first" {
		t.Fatalf("w1 got %+v", r1.env)
	}
}

func TestCursorContinuation(t *testing.T) {
	c, server := newConn(t)
	defer server.Close()

	w := make(chanWaiter, 1)
	tok, err := c.StartQuery([]byte(`[1,1]`), w)
	if err != nil {
		t.Fatalf("StartQuery: %v", err)
	}
	readFrame(t, server)

	partial, _ := json.Marshal(map[string]interface{}{"t": 3, "r": []interface{}{map[string]interface{}{"id": 1}}})
	writeFrame(t, server, tok, partial)

	first := <-w
	if first.env.Kind != decode.KindRows || !first.env.More || first.env.Continuation == nil {
		t.Fatalf("got %+v", first.env)
	}

	w2 := make(chanWaiter, 1)
	if err := first.env.Continuation.Next(w2); err != nil {
		t.Fatalf("Continuation.Next: %v", err)
	}
	contTok, contPayload := readFrame(t, server)
	if contTok != tok {
		t.Fatalf("continue token %x, want %x", contTok, tok)
	}
	if string(contPayload) != `[2]` {
		t.Fatalf("continue payload = %s", contPayload)
	}

	final, _ := json.Marshal(map[string]interface{}{"t": 2, "r": []interface{}{map[string]interface{}{"id": 2}}})
	writeFrame(t, server, tok, final)

	second := <-w2
	if second.env.Kind != decode.KindRows || second.env.More {
		t.Fatalf("got %+v", second.env)
	}

	if err := first.env.Continuation.Next(w2); err == nil {
		t.Fatal("expected ContinuationMisuseError on reuse")
	} else if _, ok := err.(*rerr.ContinuationMisuseError); !ok {
		t.Fatalf("got %T", err)
	}
}

func TestRuntimeErrorDeliveredToWaiter(t *testing.T) {
	c, server := newConn(t)
	defer server.Close()

	w := make(chanWaiter, 1)
	tok, err := c.StartQuery([]byte(`[1,1]`), w)
	if err != nil {
		t.Fatalf("StartQuery: %v", err)
	}
	readFrame(t, server)

	resp, _ := json.Marshal(map[string]interface{}{"t": 18, "r": []interface{}{"division by zero"}})
	writeFrame(t, server, tok, resp)

	res := <-w
	if res.env.Kind != decode.KindErrorEnvelope || res.env.ErrKind != rerr.ErrorKindRuntime {
		t.Fatalf("got %+v", res.env)
	}
}

func TestDisconnectMidFlightFailsInFlightWaiters(t *testing.T) {
	c, server := newConn(t)

	w := make(chanWaiter, 1)
	if _, err := c.StartQuery([]byte(`[1,1]`), w); err != nil {
		t.Fatalf("StartQuery: %v", err)
	}
	readFrame(t, server)
	server.Close()

	select {
	case res := <-w:
		if res.err == nil {
			t.Fatal("expected error after disconnect")
		}
		if _, ok := res.err.(*rerr.IoError); !ok {
			t.Fatalf("got %T", res.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("waiter never notified of disconnect")
	}

	if c.State() != StateErrored {
		t.Fatalf("state = %v, want StateErrored", c.State())
	}
}

func TestCloseDrainsInFlightWaitersWithoutOverwritingState(t *testing.T) {
	c, server := newConn(t)
	defer server.Close()

	w := make(chanWaiter, 1)
	if _, err := c.StartQuery([]byte(`[1,1]`), w); err != nil {
		t.Fatalf("StartQuery: %v", err)
	}
	readFrame(t, server)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case res := <-w:
		if _, ok := res.err.(*rerr.NotConnectedError); !ok {
			t.Fatalf("got %T", res.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("waiter never notified of close")
	}

	if c.State() != StateTerminated {
		t.Fatalf("state = %v, want StateTerminated", c.State())
	}

	if _, err := c.StartQuery([]byte(`[1,1]`), w); err == nil {
		t.Fatal("expected NotConnectedError after Close")
	}
}
