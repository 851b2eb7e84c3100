// Package transport defines the byte-message abstraction that every
// wdht node programs against (spec.md §4.3, §9's "Design Notes" on
// capability-set polymorphism): a Transport dials and accepts Channels;
// a Channel is an ordered, reliable, size-capped byte stream. Concrete
// implementations live in nativetransport (plain TCP) and
// browsertransport (WebRTC data channels over a Signaler). Grounded on
// the teacher's internal/core/transport/tcp.Transport interface shape.
package transport

import (
	"context"
	"errors"

	"github.com/SnowyCoder/wdht/pkg/types"
)

// MaxMessageSize is the hard cap on one Channel.Send payload (spec.md
// §9's 64 KiB channel message size cap).
const MaxMessageSize = 64 * 1024

var (
	ErrUnreachable    = errors.New("transport: peer unreachable")
	ErrDialTimeout    = errors.New("transport: dial timed out")
	ErrRejected       = errors.New("transport: peer rejected the dial")
	ErrChannelClosed  = errors.New("transport: channel is closed")
	ErrMessageTooLarge = errors.New("transport: message exceeds channel size cap")
)

// Channel is one ordered, reliable, size-limited byte stream to a single
// remote peer. Implementations are exclusively owned by the KademliaNode
// that opened or accepted them (spec.md §9).
type Channel interface {
	// Send writes one message; len(p) must not exceed MaxMessageSize.
	Send(ctx context.Context, p []byte) error
	// Recv blocks for the next inbound message, returning io.EOF-style
	// behavior via ErrChannelClosed once the channel is torn down.
	Recv(ctx context.Context) ([]byte, error)
	// RemoteID is the peer at the other end, if known (a just-dialed
	// native connection knows it immediately; an accepted connection
	// learns it from the handshake).
	RemoteID() (types.ID, bool)
	// Kind reports which transport produced this channel.
	Kind() types.ContactKind
	Close() error
}

// Accepted pairs an inbound Channel with the handshake-learned identity
// of the dialing peer.
type Accepted struct {
	PeerID  types.ID
	Channel Channel
}

// Transport abstracts dialing and accepting Channels over one concrete
// medium (native sockets, or WebRTC via a Signaler). A KademliaNode may
// hold more than one Transport (e.g. a native node also accepts
// browser-relayed dials it brokers for others).
type Transport interface {
	// Dial opens a Channel to peer. It may block on a multi-round
	// handshake (WebRTC offer/answer/ICE); callers should bound it with
	// ctx.
	Dial(ctx context.Context, peer types.NodeInfo) (Channel, error)
	// Accept returns a channel of inbound connections. It is read until
	// the Transport is closed.
	Accept() <-chan Accepted
	// LocalContact describes how other nodes can reach this transport.
	LocalContact() types.Contact
	Close() error
}
