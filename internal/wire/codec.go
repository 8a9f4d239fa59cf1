// Package wire implements the length-prefixed binary framing shared by
// both directions of the connection: token + length header followed by
// a UTF-8 JSON payload.
package wire

import "encoding/binary"

// HeaderLen is the size in bytes of the token+length header that
// precedes every query and response frame.
const HeaderLen = 12

// Query type codes, sent as the first element of a query payload array.
const (
	QueryStart       = 1
	QueryContinue    = 2
	QueryStop        = 3
	QueryNoReplyWait = 4
	QueryServerInfo  = 5
)

// Response type codes, read from the "t" field of a response envelope.
const (
	ResponseSuccessAtom     = 1
	ResponseSuccessSequence = 2
	ResponseSuccessPartial  = 3
	ResponseWaitComplete    = 4
	ResponseClientError     = 16
	ResponseCompileError    = 17
	ResponseRuntimeError    = 18
)

// EncodeLE64 writes x as little-endian into the first 8 bytes of dst.
func EncodeLE64(dst []byte, x uint64) {
	binary.LittleEndian.PutUint64(dst, x)
}

// DecodeLE64 reads a little-endian uint64 from the first 8 bytes of src.
func DecodeLE64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// EncodeLE32 writes x as little-endian into the first 4 bytes of dst.
func EncodeLE32(dst []byte, x uint32) {
	binary.LittleEndian.PutUint32(dst, x)
}

// DecodeLE32 reads a little-endian uint32 from the first 4 bytes of src.
func DecodeLE32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// EncodeFrame builds a complete wire frame: [token LE64][len LE32][payload].
func EncodeFrame(token uint64, payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	EncodeLE64(buf[0:8], token)
	EncodeLE32(buf[8:12], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf
}

// DecodeHeader parses a 12-byte frame header into its token and payload length.
func DecodeHeader(header []byte) (token uint64, length uint32) {
	return DecodeLE64(header[0:8]), DecodeLE32(header[8:12])
}
