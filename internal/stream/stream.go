// Package stream provides framed byte-level I/O over a single TCP
// connection: length-delimited reads, zero-terminated ASCII reads, and
// raw writes, with a small internal read buffer so read_exact can draw
// from already-arrived bytes before touching the OS again.
package stream

import (
	"bytes"
	"net"
	"strconv"
	"time"

	"github.com/hasirciogluhq/rethinkconn/internal/rerr"
)

// DefaultPort is the RethinkDB server's default listening port.
const DefaultPort = 28015

// minBufferSize is the initial capacity of the internal read buffer and
// the size of each chunk read from the socket.
const minBufferSize = 2048

// Stream is framed I/O over one net.Conn. It is not safe for
// concurrent use by more than one reader; the multiplexer's read loop
// is the only caller of the read methods once a connection is
// established.
type Stream struct {
	conn net.Conn
	buf  []byte // unconsumed bytes already read from conn
}

// Dial establishes a TCP connection to host:port.
func Dial(host string, port int, timeout time.Duration) (*Stream, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, &rerr.ConnectError{Reason: err.Error(), Cause: err}
	}
	return New(conn), nil
}

// New wraps an already-established net.Conn.
func New(conn net.Conn) *Stream {
	return &Stream{conn: conn, buf: make([]byte, 0, minBufferSize)}
}

// Write appends exactly len(b) bytes to the socket.
func (s *Stream) Write(b []byte) error {
	_, err := s.conn.Write(b)
	if err != nil {
		return &rerr.IoError{Cause: err}
	}
	return nil
}

// ReadExact returns exactly n bytes, buffering any extra bytes that
// arrived in the same underlying Read across calls.
func (s *Stream) ReadExact(n int) ([]byte, error) {
	for len(s.buf) < n {
		chunk := make([]byte, minBufferSize)
		read, err := s.conn.Read(chunk)
		if read > 0 {
			s.buf = append(s.buf, chunk[:read]...)
		}
		if err != nil {
			return nil, &rerr.IoError{Cause: err}
		}
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	s.buf = s.buf[n:]
	return out, nil
}

// ReadZeroTerminatedASCII reads bytes up to and including the next
// 0x00 byte, returning the prefix (without the terminator) as a
// string. It loops across as many underlying reads as necessary; a
// terminator that happens to fall outside the first buffered chunk
// does not truncate the result.
func (s *Stream) ReadZeroTerminatedASCII() (string, error) {
	for {
		if idx := bytes.IndexByte(s.buf, 0x00); idx >= 0 {
			out := string(s.buf[:idx])
			s.buf = s.buf[idx+1:]
			return out, nil
		}
		chunk := make([]byte, minBufferSize)
		read, err := s.conn.Read(chunk)
		if read > 0 {
			s.buf = append(s.buf, chunk[:read]...)
		}
		if err != nil {
			return "", &rerr.IoError{Cause: err}
		}
	}
}

// Close shuts down the socket. Idempotent.
func (s *Stream) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
