package rethinkdb

import "github.com/hasirciogluhq/rethinkconn/internal/rerr"

// The error taxonomy from the connection engine, re-exported so
// callers never need to import the internal package directly.
type (
	ConnectError            = rerr.ConnectError
	HandshakeError          = rerr.HandshakeError
	AuthError               = rerr.AuthError
	IoError                 = rerr.IoError
	ProtocolError           = rerr.ProtocolError
	QueryError              = rerr.QueryError
	NotConnectedError       = rerr.NotConnectedError
	ContinuationMisuseError = rerr.ContinuationMisuseError
	InternalError           = rerr.InternalError
	ErrorKind               = rerr.ErrorKind
)

const (
	ErrorKindClient  = rerr.ErrorKindClient
	ErrorKindCompile = rerr.ErrorKindCompile
	ErrorKindRuntime = rerr.ErrorKindRuntime
)
