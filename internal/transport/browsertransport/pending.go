package browsertransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// pendingConn is one in-progress handshake: a PeerConnection has been
// created (as offerer or answerer) and is waiting for its DataChannel to
// open. It implements signaling.PendingConn.
type pendingConn struct {
	pc     *webrtc.PeerConnection
	remote types.ID

	mu      sync.Mutex
	dc      *webrtc.DataChannel
	channel *channel
	opened  chan struct{}
	onOpen  func(*channel) // fires once, only set for the answerer side
}

func newPendingConn(pc *webrtc.PeerConnection, remote types.ID, onOpen func(*channel)) *pendingConn {
	return &pendingConn{pc: pc, remote: remote, opened: make(chan struct{}), onOpen: onOpen}
}

// bindDataChannel wires dc's OnOpen to resolve this pendingConn. Called
// immediately for the offerer (it created the channel itself) and from
// OnDataChannel for the answerer (it learns the channel from the remote
// offer).
func (p *pendingConn) bindDataChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		ch := newChannel(p.pc, dc, p.remote)
		p.mu.Lock()
		p.channel = ch
		onOpen := p.onOpen
		p.mu.Unlock()
		close(p.opened)
		if onOpen != nil {
			onOpen(ch)
		}
	})
}

func (p *pendingConn) SetAnswer(answer []byte) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(answer, &desc); err != nil {
		return fmt.Errorf("browsertransport: decode answer: %w", err)
	}
	return p.pc.SetRemoteDescription(desc)
}

func (p *pendingConn) AddICECandidate(fragment []byte) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(fragment, &cand); err != nil {
		return fmt.Errorf("browsertransport: decode ice candidate: %w", err)
	}
	return p.pc.AddICECandidate(cand)
}

func (p *pendingConn) Await(ctx context.Context) (transport.Channel, error) {
	select {
	case <-p.opened:
		p.mu.Lock()
		ch := p.channel
		p.mu.Unlock()
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
