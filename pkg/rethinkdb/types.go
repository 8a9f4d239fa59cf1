package rethinkdb

import "github.com/hasirciogluhq/rethinkconn/internal/decode"

// Envelope, Value and their tag enums are re-exported from the decode
// package so callers never import internal/decode directly.
type (
	Envelope     = decode.Envelope
	EnvelopeKind = decode.EnvelopeKind
	Value        = decode.Value
	ValueKind    = decode.ValueKind
	Continuation = decode.Continuation
	Waiter       = decode.Waiter
	WaiterFunc   = decode.WaiterFunc
)

const (
	KindValue         = decode.KindValue
	KindRows          = decode.KindRows
	KindErrorEnvelope = decode.KindErrorEnvelope
	KindUnknown       = decode.KindUnknown
)

const (
	ValueKindNull   = decode.KindNull
	ValueKindBool   = decode.KindBool
	ValueKindNumber = decode.KindNumber
	ValueKindString = decode.KindString
	ValueKindBytes  = decode.KindBytes
	ValueKindTime   = decode.KindTime
	ValueKindArray  = decode.KindArray
	ValueKindObject = decode.KindObject
)

// ToJSON re-serializes a decoded Value back into JSON, the same way a
// Cursor unmarshals rows into caller-provided Go types.
func ToJSON(v Value) ([]byte, error) {
	return valueToJSON(v)
}
