// Package handshake brings a freshly dialed stream.Stream from raw TCP
// to an authenticated, query-ready channel: protocol-version
// negotiation (V0_4 or V1_0) plus, for V1_0, the RFC 5802
// SCRAM-SHA-256 client state machine.
package handshake

import (
	"encoding/json"
	"fmt"

	"github.com/hasirciogluhq/rethinkconn/internal/rerr"
	"github.com/hasirciogluhq/rethinkconn/internal/stream"
	"github.com/hasirciogluhq/rethinkconn/internal/wire"
)

// Version selects the wire handshake variant.
type Version int

const (
	V1_0 Version = iota
	V0_4
)

const (
	magicV0_4        uint32 = 0x400C2D20
	magicV1_0        uint32 = 0x34C2BDC3
	protocolTypeJSON uint32 = 0x7E6970C7
	successLiteral          = "SUCCESS"
)

// Options configure a handshake attempt.
type Options struct {
	Version  Version
	Username string // default "admin"
	Password string // default ""
}

// scramState names a step of the SCRAM exchange, letting the whole
// negotiation run as a single advance(incomingMessage) step instead of
// a pyramid of nested callbacks.
type scramState int

const (
	scramSentClientFirst scramState = iota
	scramSentClientFinal
	scramAuthenticated
)

// scramMachine drives the client side of the SCRAM exchange one
// incoming server message at a time.
type scramMachine struct {
	client *scramClient
	state  scramState
}

func newScramMachine(username, password string) (*scramMachine, []byte, error) {
	sc, err := newScramClient(username, password)
	if err != nil {
		return nil, nil, err
	}
	m := &scramMachine{client: sc, state: scramSentClientFirst}
	return m, sc.clientFirstMessage(), nil
}

// advance feeds one server "authentication" field value in and, if the
// exchange isn't finished, returns the next message to send.
func (m *scramMachine) advance(serverMessage []byte) (outgoing []byte, done bool, err error) {
	switch m.state {
	case scramSentClientFirst:
		if err := m.client.receiveServerFirstMessage(serverMessage); err != nil {
			return nil, false, err
		}
		m.state = scramSentClientFinal
		return m.client.clientFinalMessage(), false, nil
	case scramSentClientFinal:
		if err := m.client.verifyServerFinalMessage(serverMessage); err != nil {
			return nil, false, err
		}
		m.state = scramAuthenticated
		return nil, true, nil
	default:
		return nil, false, &rerr.InternalError{Reason: "scram advance called after completion"}
	}
}

// Negotiate runs the handshake to completion. On success the stream is
// ready for query frames.
func Negotiate(s *stream.Stream, opts Options) error {
	username := opts.Username
	if username == "" {
		username = "admin"
	}

	if opts.Version == V0_4 {
		return negotiateV0_4(s, username)
	}
	return negotiateV1_0(s, username, opts.Password)
}

func negotiateV0_4(s *stream.Stream, authKey string) error {
	header := make([]byte, 4)
	wire.EncodeLE32(header, magicV0_4)
	if err := s.Write(header); err != nil {
		return err
	}

	keyLen := make([]byte, 4)
	wire.EncodeLE32(keyLen, uint32(len(authKey)))
	if err := s.Write(keyLen); err != nil {
		return err
	}
	if len(authKey) > 0 {
		if err := s.Write([]byte(authKey)); err != nil {
			return err
		}
	}

	protoType := make([]byte, 4)
	wire.EncodeLE32(protoType, protocolTypeJSON)
	if err := s.Write(protoType); err != nil {
		return err
	}

	reply, err := s.ReadZeroTerminatedASCII()
	if err != nil {
		return err
	}
	if reply != successLiteral {
		return &rerr.HandshakeError{ServerMessage: reply}
	}
	return nil
}

type v1HelloReply struct {
	Success            bool   `json:"success"`
	MinProtocolVersion int    `json:"min_protocol_version"`
	MaxProtocolVersion int    `json:"max_protocol_version"`
	ServerVersion      string `json:"server_version"`
	Error              string `json:"error"`
}

type scramFirstEnvelope struct {
	ProtocolVersion      int    `json:"protocol_version"`
	AuthenticationMethod string `json:"authentication_method"`
	Authentication       string `json:"authentication"`
}

type scramEnvelope struct {
	Authentication string `json:"authentication"`
}

type scramReply struct {
	Success        bool   `json:"success"`
	Authentication string `json:"authentication"`
	Error          string `json:"error"`
	ErrorCode      int    `json:"error_code"`
}

func negotiateV1_0(s *stream.Stream, username, password string) error {
	magic := make([]byte, 4)
	wire.EncodeLE32(magic, magicV1_0)
	if err := s.Write(magic); err != nil {
		return err
	}

	helloRaw, err := s.ReadZeroTerminatedASCII()
	if err != nil {
		return err
	}
	var hello v1HelloReply
	if jerr := json.Unmarshal([]byte(helloRaw), &hello); jerr != nil {
		return &rerr.HandshakeError{ServerMessage: helloRaw}
	}
	if !hello.Success {
		return &rerr.HandshakeError{ServerMessage: hello.Error}
	}

	machine, clientFirst, err := newScramMachine(username, password)
	if err != nil {
		return err
	}

	req := scramFirstEnvelope{
		ProtocolVersion:      0,
		AuthenticationMethod: "SCRAM-SHA-256",
		Authentication:       string(clientFirst),
	}
	if err := writeJSONMessage(s, req); err != nil {
		return err
	}

	for {
		reply, err := readScramReply(s)
		if err != nil {
			return err
		}
		outgoing, done, err := machine.advance([]byte(reply.Authentication))
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := writeJSONMessage(s, scramEnvelope{Authentication: string(outgoing)}); err != nil {
			return err
		}
	}
}

func readScramReply(s *stream.Stream) (scramReply, error) {
	raw, err := s.ReadZeroTerminatedASCII()
	if err != nil {
		return scramReply{}, err
	}
	var reply scramReply
	if jerr := json.Unmarshal([]byte(raw), &reply); jerr != nil {
		return scramReply{}, &rerr.HandshakeError{ServerMessage: raw}
	}
	if !reply.Success && reply.Authentication == "" {
		if reply.Error != "" {
			return scramReply{}, &rerr.AuthError{Reason: reply.Error}
		}
		return scramReply{}, &rerr.AuthError{Reason: fmt.Sprintf("authentication rejected: %s", raw)}
	}
	return reply, nil
}

func writeJSONMessage(s *stream.Stream, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return &rerr.AuthError{Reason: fmt.Sprintf("encoding SCRAM message: %v", err)}
	}
	b = append(b, 0x00)
	return s.Write(b)
}
