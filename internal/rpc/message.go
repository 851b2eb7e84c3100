package rpc

import (
	"encoding/json"

	"github.com/SnowyCoder/wdht/pkg/types"
)

// Kind distinguishes a request frame from its matching response.
type Kind string

const (
	KindRequest  Kind = "req"
	KindResponse Kind = "res"
)

// BodyType discriminates the tagged-union RPC bodies of spec.md §4.3.
type BodyType string

const (
	TypePing        BodyType = "ping"
	TypeFindNode    BodyType = "find_node"
	TypeFindValue   BodyType = "find_value"
	TypeStore       BodyType = "store"
	TypeConnect     BodyType = "connect"
	TypeICE         BodyType = "ice"
	TypeAck         BodyType = "ack"
	TypeNodes       BodyType = "nodes"
	TypeRecords     BodyType = "records"
	TypeAnswer      BodyType = "answer"
	TypeICEFragment BodyType = "ice_fragment"
	TypeError       BodyType = "error"
)

// Frame is the outermost wire envelope: {"id":u64,"kind":"req"|"res","body":{"type":...}}.
type Frame struct {
	ID   uint64          `json:"id"`
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// body is embedded by every concrete payload so it round-trips through
// the "type" discriminator.
type body struct {
	Type BodyType `json:"type"`
}

// PingBody carries no payload; its presence is the request.
type PingBody struct {
	Type BodyType `json:"type"`
}

func NewPingBody() PingBody { return PingBody{Type: TypePing} }

// FindNodeBody requests the K peers closest to Target.
type FindNodeBody struct {
	Type   BodyType `json:"type"`
	Target string   `json:"target"`
}

func NewFindNodeBody(target types.ID) FindNodeBody {
	return FindNodeBody{Type: TypeFindNode, Target: target.String()}
}

// FindValueBody requests records stored under Key, falling back to
// peer contacts when the responder has none.
type FindValueBody struct {
	Type BodyType `json:"type"`
	Key  string   `json:"key"`
}

func NewFindValueBody(key types.ID) FindValueBody {
	return FindValueBody{Type: TypeFindValue, Key: key.String()}
}

// StoreBody pushes a record to the responder.
type StoreBody struct {
	Type   BodyType          `json:"type"`
	Record types.RecordWire  `json:"record"`
}

// ConnectBody relays an opaque SDP offer to Target, per spec.md §6's
// signaling payload contract; the answer comes back as an AnswerBody. Relays never inspect SDP.
type ConnectBody struct {
	Type   BodyType `json:"type"`
	Target string   `json:"target"`
	SDP    []byte   `json:"sdp"`
}

func NewConnectBody(target types.ID, sdp []byte) ConnectBody {
	return ConnectBody{Type: TypeConnect, Target: target.String(), SDP: sdp}
}

// ICEBody forwards one best-effort ICE candidate fragment; it has no
// reply.
type ICEBody struct {
	Type      BodyType `json:"type"`
	Target    string   `json:"target"`
	Candidate []byte   `json:"candidate"`
}

func NewICEBody(target types.ID, candidate []byte) ICEBody {
	return ICEBody{Type: TypeICE, Target: target.String(), Candidate: candidate}
}

// NodesBody answers FIND_NODE/FIND_VALUE-miss with up to K contacts.
type NodesBody struct {
	Type  BodyType               `json:"type"`
	Nodes []types.PeerRecordWire `json:"nodes"`
}

// RecordsBody answers FIND_VALUE with the records the responder holds.
type RecordsBody struct {
	Type    BodyType          `json:"type"`
	Records []types.RecordWire `json:"records"`
}

// AckBody answers STORE.
type AckBody struct {
	Type BodyType `json:"type"`
	OK   bool     `json:"ok"`
}

// AnswerBody answers CONNECT with the responder's SDP answer, or with ICE
// fragments already gathered.
type AnswerBody struct {
	Type        BodyType `json:"type"`
	AnswerBytes []byte   `json:"answer_bytes,omitempty"`
}

// ErrorBody reports a structured RPC-level failure (spec.md §7's error
// taxonomy, not a transport failure — those never produce a reply at
// all).
type ErrorBody struct {
	Type    BodyType `json:"type"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
}

// PeekType reads only the "type" discriminator out of a raw body without
// unmarshalling the rest, so the dispatcher can pick a concrete struct.
func PeekType(raw json.RawMessage) (BodyType, error) {
	var b body
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", err
	}
	return b.Type, nil
}
