package browsertransport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/SnowyCoder/wdht/internal/signaling"
	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/internal/wlog"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// Config configures the ICE servers PeerConnections use to gather
// candidates. An empty STUNServers list restricts connectivity to
// peers reachable without NAT traversal help, which is acceptable for
// the relay-brokered, single-hop model spec.md §9 describes.
type Config struct {
	STUNServers []string
}

func DefaultConfig() Config {
	return Config{STUNServers: []string{"stun:stun.l.google.com:19302"}}
}

// Transport is the browser side of the dual transport model: it never
// dials directly (a browser has no listening address), but implements
// signaling.OfferAnswerer so internal/signaling can drive its handshakes,
// and transport.Transport so opened channels surface through the same
// Accept() path as nativetransport.
type Transport struct {
	localID types.ID
	cfg     Config
	api     *webrtc.API

	accepted chan transport.Accepted
	log      *wlog.Logger
}

func New(localID types.ID, cfg Config) *Transport {
	loggerFactory := logging.NewDefaultLoggerFactory()
	settingEngine := webrtc.SettingEngine{LoggerFactory: loggerFactory}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return &Transport{
		localID:  localID,
		cfg:      cfg,
		api:      api,
		accepted: make(chan transport.Accepted, 32),
		log:      wlog.Get("transport.browser"),
	}
}

func (t *Transport) iceServers() []webrtc.ICEServer {
	if len(t.cfg.STUNServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: t.cfg.STUNServers}}
}

func (t *Transport) newPeerConnection() (*webrtc.PeerConnection, error) {
	return t.api.NewPeerConnection(webrtc.Configuration{ICEServers: t.iceServers()})
}

// CreateOffer implements signaling.OfferAnswerer for the initiating side:
// it opens a data channel, waits for ICE gathering to complete, and
// returns the resulting SDP offer.
func (t *Transport) CreateOffer(ctx context.Context, remote types.ID) ([]byte, signaling.PendingConn, error) {
	pc, err := t.newPeerConnection()
	if err != nil {
		return nil, nil, fmt.Errorf("browsertransport: new peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel("wdht", nil)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("browsertransport: create data channel: %w", err)
	}

	pending := newPendingConn(pc, remote, nil)
	pending.bindDataChannel(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("browsertransport: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("browsertransport: set local description: %w", err)
	}

	if err := waitGatheringComplete(ctx, pc); err != nil {
		pc.Close()
		return nil, nil, err
	}

	data, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("browsertransport: marshal offer: %w", err)
	}
	return data, pending, nil
}

// AcceptOffer implements signaling.OfferAnswerer for the answering side:
// it applies the remote offer, waits for its own data channel and ICE
// gathering, and returns the SDP answer.
func (t *Transport) AcceptOffer(ctx context.Context, remote types.ID, offer []byte) ([]byte, signaling.PendingConn, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(offer, &desc); err != nil {
		return nil, nil, fmt.Errorf("browsertransport: decode offer: %w", err)
	}

	pc, err := t.newPeerConnection()
	if err != nil {
		return nil, nil, fmt.Errorf("browsertransport: new peer connection: %w", err)
	}

	pending := newPendingConn(pc, remote, func(ch *channel) {
		select {
		case t.accepted <- transport.Accepted{PeerID: remote, Channel: ch}:
		default:
			t.log.Warn("accept queue full, dropping browser channel", "peer", remote.ShortString())
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		pending.bindDataChannel(dc)
	})

	if err := pc.SetRemoteDescription(desc); err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("browsertransport: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("browsertransport: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("browsertransport: set local description: %w", err)
	}

	if err := waitGatheringComplete(ctx, pc); err != nil {
		pc.Close()
		return nil, nil, err
	}

	data, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("browsertransport: marshal answer: %w", err)
	}
	return data, pending, nil
}

func waitGatheringComplete(ctx context.Context, pc *webrtc.PeerConnection) error {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dial always fails: a browser peer has nothing to listen on, so every
// dial to one must go through internal/signaling's relay instead.
func (t *Transport) Dial(ctx context.Context, peer types.NodeInfo) (transport.Channel, error) {
	return nil, fmt.Errorf("%w: browser peers are only reachable via signaling relay", transport.ErrUnreachable)
}

func (t *Transport) Accept() <-chan transport.Accepted { return t.accepted }

// LocalContact reports this node as a browser contact; callers cannot
// dial it directly, only through the signaling relay — its Addr is
// purely informational.
func (t *Transport) LocalContact() types.Contact {
	return types.Contact{Kind: types.ContactBrowser, Addr: t.localID.String()}
}

func (t *Transport) Close() error {
	close(t.accepted)
	return nil
}
