package testserver

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// FakeRethinkServer simulates just enough of a RethinkDB server to
// drive the V1_0/SCRAM-SHA-256 handshake and, once authenticated, a
// scripted sequence of query responses keyed by token. It exists for
// tests that exercise the handshake and multiplexer against a real
// net.Conn rather than an in-process mock of Stream.
type FakeRethinkServer struct {
	Username string
	Password string

	// Responses, if set, is consulted by Handle once the handshake
	// completes: for each inbound query frame it writes back the
	// raw response-envelope bytes at the same index, in order,
	// ignoring the query's own contents.
	Responses [][]byte

	salt []byte
	iter int
}

const (
	magicV1_0        uint32 = 0x34C2BDC3
	serverNonceExtra        = "FAKESERVERNONCE"
)

// Handle drives one connection through handshake and then replays
// Responses against whatever tokens arrive, oldest-first.
func (f *FakeRethinkServer) Handle(conn net.Conn) {
	defer conn.Close()

	if f.salt == nil {
		f.salt = []byte("deterministic-salt-16b")
		f.iter = 4096
	}

	if err := f.negotiate(conn); err != nil {
		return
	}
	f.serveQueries(conn)
}

func (f *FakeRethinkServer) negotiate(conn net.Conn) error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(conn, magic); err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(magic) != magicV1_0 {
		return fmt.Errorf("fakerethink: unsupported magic %x", magic)
	}

	hello, _ := json.Marshal(map[string]interface{}{
		"success":              true,
		"min_protocol_version": 0,
		"max_protocol_version": 0,
		"server_version":       "2.4.0-fake",
	})
	if err := writeNullTerminated(conn, hello); err != nil {
		return err
	}

	clientFirst, err := readNullTerminated(conn)
	if err != nil {
		return err
	}
	var req struct {
		Authentication string `json:"authentication"`
	}
	if err := json.Unmarshal(clientFirst, &req); err != nil {
		return err
	}
	clientFirstBare := strings.TrimPrefix(req.Authentication, "n,,")
	clientNonce := fieldValue(clientFirstBare, "r")

	combinedNonce := clientNonce + serverNonceExtra
	serverFirst := fmt.Sprintf("r=%s,s=%s,i=%d", combinedNonce, base64.StdEncoding.EncodeToString(f.salt), f.iter)

	step4, _ := json.Marshal(map[string]interface{}{"success": true, "authentication": serverFirst})
	if err := writeNullTerminated(conn, step4); err != nil {
		return err
	}

	step5, err := readNullTerminated(conn)
	if err != nil {
		return err
	}
	var req5 struct {
		Authentication string `json:"authentication"`
	}
	if err := json.Unmarshal(step5, &req5); err != nil {
		return err
	}
	clientFinal := req5.Authentication
	pIdx := strings.LastIndex(clientFinal, ",p=")
	if pIdx < 0 {
		return fmt.Errorf("fakerethink: missing proof")
	}
	clientFinalWithoutProof := clientFinal[:pIdx]
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	saltedPassword := pbkdf2.Key([]byte(f.Password), f.salt, f.iter, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSig := hmacSHA256(storedKey[:], []byte(authMessage))
	expectedProof := make([]byte, len(clientKey))
	for i := range clientKey {
		expectedProof[i] = clientKey[i] ^ clientSig[i]
	}
	actualProof, err := base64.StdEncoding.DecodeString(clientFinal[pIdx+len(",p="):])
	if err != nil || !hmac.Equal(actualProof, expectedProof) {
		errReply, _ := json.Marshal(map[string]interface{}{"success": false, "error": "Wrong password", "error_code": 12})
		return writeNullTerminated(conn, errReply)
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	serverSig := hmacSHA256(serverKey, []byte(authMessage))
	step6, _ := json.Marshal(map[string]interface{}{
		"success":        true,
		"authentication": "v=" + base64.StdEncoding.EncodeToString(serverSig),
	})
	return writeNullTerminated(conn, step6)
}

func (f *FakeRethinkServer) serveQueries(conn net.Conn) {
	for i := 0; i < len(f.Responses); i++ {
		header := make([]byte, 12)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		token := binary.LittleEndian.Uint64(header[:8])
		length := binary.LittleEndian.Uint32(header[8:12])
		if _, err := io.ReadFull(conn, make([]byte, length)); err != nil {
			return
		}

		resp := f.Responses[i]
		out := make([]byte, 12+len(resp))
		binary.LittleEndian.PutUint64(out[:8], token)
		binary.LittleEndian.PutUint32(out[8:12], uint32(len(resp)))
		copy(out[12:], resp)
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func fieldValue(fields, key string) string {
	for _, part := range strings.Split(fields, ",") {
		if strings.HasPrefix(part, key+"=") {
			return strings.TrimPrefix(part, key+"=")
		}
	}
	return ""
}

func writeNullTerminated(w io.Writer, b []byte) error {
	_, err := w.Write(append(append([]byte{}, b...), 0x00))
	return err
}

func readNullTerminated(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			return nil, err
		}
		if one[0] == 0x00 {
			return buf.Bytes(), nil
		}
		buf.WriteByte(one[0])
	}
}
