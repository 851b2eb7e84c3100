package node

import (
	"errors"
	"fmt"
)

// Sentinel errors, modeled on the teacher's flat var block
// (internal/discovery/dht/errors.go) plus spec.md §7's error taxonomy
// entries that have no home in a lower package.
var (
	ErrNotStarted     = errors.New("node: not started")
	ErrAlreadyStarted = errors.New("node: already started")
	ErrClosed         = errors.New("node: closed")

	// ErrNoPeers is LookupError::NoPeers: the routing table was empty
	// when a lookup started.
	ErrNoPeers = errors.New("node: routing table is empty")

	// ErrInsertFailed is returned by Insert when every STORE to the K
	// closest peers failed (spec.md §7: "insert fails only if zero
	// STOREs succeed").
	ErrInsertFailed = errors.New("node: no peer acknowledged the store")

	// ErrAllSeedsFailed is BootstrapError::AllSeedsFailed.
	ErrAllSeedsFailed = errors.New("node: no bootstrap seed responded")

	// ErrMalformedFrame is RpcError::MalformedFrame.
	ErrMalformedFrame = errors.New("node: malformed rpc frame")

	// ErrUnknownCorrelation is RpcError::UnknownCorrelation: a response
	// arrived with no matching pending entry.
	ErrUnknownCorrelation = errors.New("node: response has no matching pending request")

	// ErrTTLOutOfRange is StoreError::TtlOutOfRange. spec.md §8 treats
	// TTL=0 as a legitimate immediate-delete marker, so the only bound
	// enforced is an upper one; see DESIGN.md's Open Question decision
	// on MaxTTL.
	ErrTTLOutOfRange = errors.New("node: ttl exceeds the maximum allowed")

	// ErrNoTransportForContact is raised when a NodeInfo's contact kind
	// has no matching Transport registered on this node.
	ErrNoTransportForContact = errors.New("node: no transport registered for contact kind")
)

// MaxTTL bounds StoreError::TtlOutOfRange (an Open Question spec.md left
// unspecified — see DESIGN.md). One week comfortably covers republish
// cadence without letting a single STORE pin a record forever.
const MaxTTL = 7 * 24 * 60 * 60 // seconds, matches RecordWire.TTLSeconds's unit

// NodeError wraps an operation name and underlying cause, mirroring the
// teacher's DHTError (internal/discovery/dht/errors.go).
type NodeError struct {
	Op      string
	Err     error
	Message string
}

func (e *NodeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("node %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("node %s: %v", e.Op, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// PeerFault is RpcError::PeerFault(string): a peer answered with a
// structured error body instead of the expected response.
type PeerFault struct {
	Code    string
	Message string
}

func (e *PeerFault) Error() string {
	return fmt.Sprintf("node: peer fault %s: %s", e.Code, e.Message)
}
