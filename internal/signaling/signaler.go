package signaling

import (
	"context"
	"time"

	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/internal/wlog"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// HandshakeTimeout bounds the whole offer/answer/ICE exchange for one
// Connect call (spec.md §4.4).
const HandshakeTimeout = 30 * time.Second

// PendingConn is one in-progress WebRTC handshake: an offer has been
// created (or an offer has been answered) and the caller is waiting for
// the data channel to open. Implemented by browsertransport.
type PendingConn interface {
	SetAnswer(answer []byte) error
	AddICECandidate(fragment []byte) error
	Await(ctx context.Context) (transport.Channel, error)
}

// OfferAnswerer creates the local SDP state for both sides of a WebRTC
// handshake. Implemented by browsertransport; kept as an interface here
// so this package carries no pion/webrtc import.
type OfferAnswerer interface {
	CreateOffer(ctx context.Context, remote types.ID) (offer []byte, pending PendingConn, err error)
	AcceptOffer(ctx context.Context, remote types.ID, offer []byte) (answer []byte, pending PendingConn, err error)
}

// RelayLookup lets a relay decide, on an inbound CONNECT/ICE, whether it
// already holds a channel to the requested target.
type RelayLookup interface {
	ChannelTo(id types.ID) (transport.Channel, bool)
}

// ConnectRPC sends one CONNECT request over an already-open channel and
// returns the remote's answer (or forwarded answer, if ch's peer is
// itself relaying).
type ConnectRPC func(ctx context.Context, ch transport.Channel, target types.ID, offer []byte) (answer []byte, err error)

// ICERPC forwards one best-effort ICE fragment over ch; it has no reply.
type ICERPC func(ctx context.Context, ch transport.Channel, target types.ID, fragment []byte) error

// Signaler drives both roles of spec.md §4.4's relay protocol: the
// initiator (Connect) and the single-hop relay (HandleConnect/HandleICE).
type Signaler struct {
	localID       types.ID
	oa            OfferAnswerer
	lookup        RelayLookup
	connect       ConnectRPC
	ice           ICERPC
	onEstablished func(remote types.ID, ch transport.Channel)

	log *wlog.Logger
}

// New builds a Signaler. onEstablished, if non-nil, is invoked once with
// the resulting channel whenever this node answers an offer as the
// destination (HandleConnect's local branch) and the handshake completes —
// the only path by which a channel this node didn't itself initiate via
// Connect comes into being. May be nil in tests that only exercise the
// relay branch.
func New(localID types.ID, oa OfferAnswerer, lookup RelayLookup, connect ConnectRPC, ice ICERPC, onEstablished func(types.ID, transport.Channel)) *Signaler {
	return &Signaler{
		localID:       localID,
		oa:            oa,
		lookup:        lookup,
		connect:       connect,
		ice:           ice,
		onEstablished: onEstablished,
		log:           wlog.Get("signaling"),
	}
}

type relayAttempt struct {
	channel transport.Channel
	answer  []byte
	err     error
}

// Connect dials target through one of relayChannels (channels this node
// already holds to candidate relays that in turn hold a channel to
// target). It tries every relay in parallel and completes on the first
// successful answer, per spec.md §4.4's "A may try multiple relays in
// parallel — first successful answer wins."
func (s *Signaler) Connect(ctx context.Context, target types.ID, relayChannels []transport.Channel) (transport.Channel, error) {
	if len(relayChannels) == 0 {
		return nil, ErrNoRelay
	}

	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	offer, pending, err := s.oa.CreateOffer(ctx, target)
	if err != nil {
		return nil, err
	}

	results := make(chan relayAttempt, len(relayChannels))
	for _, relayCh := range relayChannels {
		go func(ch transport.Channel) {
			answer, err := s.connect(ctx, ch, target, offer)
			results <- relayAttempt{channel: ch, answer: answer, err: err}
		}(relayCh)
	}

	var lastErr error = ErrNoRelay
	for i := 0; i < len(relayChannels); i++ {
		select {
		case res := <-results:
			if res.err != nil {
				lastErr = res.err
				continue
			}
			if err := pending.SetAnswer(res.answer); err != nil {
				lastErr = err
				continue
			}
			ch, err := pending.Await(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			return ch, nil
		case <-ctx.Done():
			return nil, ErrHandshakeTimeout
		}
	}
	return nil, lastErr
}

// HandleConnect processes an inbound CONNECT RPC. If targetID names this
// node, it answers the offer directly. Otherwise it acts as a relay: it
// forwards the offer to targetID over an already-open channel and
// relays the answer back, refusing with ErrRelayDenied if it holds no
// such channel (spec.md §9 forbids chaining through a second relay).
func (s *Signaler) HandleConnect(ctx context.Context, from types.ID, targetID types.ID, offer []byte) ([]byte, error) {
	if targetID == s.localID {
		answer, pending, err := s.oa.AcceptOffer(ctx, from, offer)
		if err != nil {
			return nil, err
		}
		go s.awaitInBackground(pending, from)
		return answer, nil
	}

	ch, ok := s.lookup.ChannelTo(targetID)
	if !ok {
		return nil, ErrRelayDenied
	}
	return s.connect(ctx, ch, from, offer)
}

// HandleICE forwards a best-effort ICE fragment exactly one hop, mirroring
// HandleConnect's role split.
func (s *Signaler) HandleICE(ctx context.Context, from types.ID, targetID types.ID, fragment []byte) error {
	if targetID == s.localID {
		// A fragment addressed to this node is dropped: nothing hands
		// it to the matching PendingConn. Offers and answers already
		// carry every gathered candidate, so the handshake does not
		// depend on these fragments.
		return nil
	}
	ch, ok := s.lookup.ChannelTo(targetID)
	if !ok {
		return ErrRelayDenied
	}
	return s.ice(ctx, ch, from, fragment)
}

func (s *Signaler) awaitInBackground(pending PendingConn, remote types.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), HandshakeTimeout)
	defer cancel()
	ch, err := pending.Await(ctx)
	if err != nil {
		s.log.Warn("answered handshake never opened", "peer", remote.ShortString(), "err", err)
		return
	}
	if s.onEstablished != nil {
		s.onEstablished(remote, ch)
	}
}
