package handshake

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/secure/precis"

	"github.com/hasirciogluhq/rethinkconn/internal/rerr"
)

const clientNonceLen = 18

// scramClient drives the client side of RFC 5802 SCRAM-SHA-256. State
// is discarded once the handshake completes or fails; a scramClient is
// single-use.
type scramClient struct {
	username string
	password []byte
	nonce    []byte

	clientFirstBare []byte
	serverFirst     []byte
	combinedNonce   []byte
	salt            []byte
	iterations      int

	saltedPassword []byte
	authMessage    []byte
}

func newScramClient(username, password string) (*scramClient, error) {
	nonce := make([]byte, clientNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, &rerr.AuthError{Reason: fmt.Sprintf("generating client nonce: %v", err)}
	}
	encoded := make([]byte, base64.RawStdEncoding.EncodedLen(len(nonce)))
	base64.RawStdEncoding.Encode(encoded, nonce)
	return newScramClientWithNonce(username, password, encoded), nil
}

// newScramClientWithNonce allows tests to pin the client nonce so
// results can be checked against RFC 5802 test vectors.
func newScramClientWithNonce(username, password string, nonce []byte) *scramClient {
	pw, err := precis.OpaqueString.Bytes([]byte(password))
	if err != nil {
		// RethinkDB, like PostgreSQL, allows passwords that SASLprep
		// would reject; fall back to the raw bytes rather than fail.
		pw = []byte(password)
	}
	return &scramClient{username: username, password: pw, nonce: nonce}
}

func scramEscape(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

func (sc *scramClient) clientFirstMessage() []byte {
	sc.clientFirstBare = []byte(fmt.Sprintf("n=%s,r=%s", scramEscape(sc.username), sc.nonce))
	return append([]byte("n,,"), sc.clientFirstBare...)
}

func (sc *scramClient) receiveServerFirstMessage(serverFirst []byte) error {
	sc.serverFirst = serverFirst
	buf := serverFirst

	if !bytes.HasPrefix(buf, []byte("r=")) {
		return &rerr.AuthError{Reason: "server-first-message missing r="}
	}
	buf = buf[2:]

	idx := bytes.IndexByte(buf, ',')
	if idx == -1 {
		return &rerr.AuthError{Reason: "server-first-message missing s="}
	}
	sc.combinedNonce = buf[:idx]
	buf = buf[idx+1:]

	if !bytes.HasPrefix(buf, []byte("s=")) {
		return &rerr.AuthError{Reason: "server-first-message missing s="}
	}
	buf = buf[2:]

	idx = bytes.IndexByte(buf, ',')
	if idx == -1 {
		return &rerr.AuthError{Reason: "server-first-message missing i="}
	}
	saltStr := buf[:idx]
	buf = buf[idx+1:]

	if !bytes.HasPrefix(buf, []byte("i=")) {
		return &rerr.AuthError{Reason: "server-first-message missing i="}
	}
	iterStr := buf[2:]

	salt, err := base64.StdEncoding.DecodeString(string(saltStr))
	if err != nil {
		return &rerr.AuthError{Reason: fmt.Sprintf("invalid salt: %v", err)}
	}
	sc.salt = salt

	iterations, err := strconv.Atoi(string(iterStr))
	if err != nil || iterations <= 0 {
		return &rerr.AuthError{Reason: fmt.Sprintf("invalid iteration count %q", iterStr)}
	}
	sc.iterations = iterations

	if !bytes.HasPrefix(sc.combinedNonce, sc.nonce) {
		return &rerr.AuthError{Reason: "server nonce does not extend client nonce"}
	}
	if len(sc.combinedNonce) <= len(sc.nonce) {
		return &rerr.AuthError{Reason: "server did not add its own nonce"}
	}

	return nil
}

func (sc *scramClient) clientFinalMessage() []byte {
	clientFinalWithoutProof := []byte(fmt.Sprintf("c=biws,r=%s", sc.combinedNonce))

	sc.saltedPassword = pbkdf2.Key(sc.password, sc.salt, sc.iterations, sha256.Size, sha256.New)
	sc.authMessage = bytes.Join([][]byte{sc.clientFirstBare, sc.serverFirst, clientFinalWithoutProof}, []byte(","))

	proof := computeClientProof(sc.saltedPassword, sc.authMessage)
	return append(append(clientFinalWithoutProof, ",p="...), proof...)
}

func (sc *scramClient) verifyServerFinalMessage(serverFinal []byte) error {
	if !bytes.HasPrefix(serverFinal, []byte("v=")) {
		return &rerr.AuthError{Reason: "server-final-message missing v="}
	}
	gotSig, err := base64.StdEncoding.DecodeString(string(serverFinal[2:]))
	if err != nil {
		return &rerr.AuthError{Reason: fmt.Sprintf("invalid server signature encoding: %v", err)}
	}
	want := rawServerSignature(sc.saltedPassword, sc.authMessage)
	if !hmac.Equal(gotSig, want) {
		return &rerr.AuthError{Reason: "server signature mismatch"}
	}
	return nil
}

func computeHMAC(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func computeClientProof(saltedPassword, authMessage []byte) []byte {
	clientKey := computeHMAC(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := computeHMAC(storedKey[:], authMessage)

	proof := make([]byte, len(clientSignature))
	for i := range clientSignature {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(proof)))
	base64.StdEncoding.Encode(encoded, proof)
	return encoded
}

func rawServerSignature(saltedPassword, authMessage []byte) []byte {
	serverKey := computeHMAC(saltedPassword, []byte("Server Key"))
	return computeHMAC(serverKey, authMessage)
}
