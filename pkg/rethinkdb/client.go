// Package rethinkdb is the caller-facing API for the RethinkDB-compatible
// connection engine: Connect a TCP socket through handshake and
// authentication, then multiplex queries over it by token.
package rethinkdb

import (
	"time"

	"github.com/hasirciogluhq/rethinkconn/internal/handshake"
	"github.com/hasirciogluhq/rethinkconn/internal/multiplex"
	"github.com/hasirciogluhq/rethinkconn/internal/stream"
	"github.com/hasirciogluhq/rethinkconn/internal/token"
	"github.com/hasirciogluhq/rethinkconn/internal/urlconfig"
)

// HandshakeVersion selects the wire handshake variant.
type HandshakeVersion int

const (
	V1_0 HandshakeVersion = iota
	V0_4
)

// ConnectOptions configures a Connect call. The zero value picks
// V1_0/SCRAM, username "admin", no password, and a 10s dial timeout.
type ConnectOptions struct {
	HandshakeVersion HandshakeVersion
	Username         string
	Password         string
	DialTimeout      time.Duration
}

// Connect dials the server named by url, runs the handshake, and
// returns a live Connection ready to run queries.
func Connect(url string, opts ConnectOptions) (*Connection, error) {
	cfg, err := urlconfig.Parse(url)
	if err != nil {
		return nil, err
	}

	username := firstNonEmpty(opts.Username, cfg.Username, "admin")
	password := opts.Password
	if password == "" {
		password = cfg.Password
	}
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	s, err := stream.Dial(cfg.Host, cfg.Port, timeout)
	if err != nil {
		return nil, err
	}

	hv := handshake.V1_0
	if opts.HandshakeVersion == V0_4 {
		hv = handshake.V0_4
	}
	if err := handshake.Negotiate(s, handshake.Options{
		Version:  hv,
		Username: username,
		Password: password,
	}); err != nil {
		_ = s.Close()
		return nil, err
	}

	inner := multiplex.New(s, token.Global)
	inner.Start()

	return &Connection{inner: inner}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
