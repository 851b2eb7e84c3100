package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/SnowyCoder/wdht/internal/kademlia"
	"github.com/SnowyCoder/wdht/internal/rpc"
	"github.com/SnowyCoder/wdht/internal/signaling"
	"github.com/SnowyCoder/wdht/internal/store"
	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/internal/wlog"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// KademliaNode glues the routing table, record store, transports and
// signaling relay into the single object spec.md §4.6 describes
// ("Glues the above"). It is grounded on the teacher's DHT struct
// (internal/discovery/dht/dht.go) but owns its transports directly
// rather than going through a shared Host, since spec.md has no
// separate host/swarm layer.
type KademliaNode struct {
	localID types.ID
	cfg     *Config
	clk     clock.Clock

	rt    *kademlia.RoutingTable
	store *store.RecordStore
	peers *peerTable

	native  transport.Transport
	browser transport.Transport // nil if this node never brokers browser peers

	signaler *signaling.Signaler

	lookupSem     *semaphore.Weighted
	activeLookups int64

	// dialGroup collapses concurrent getOrDial calls for the same peer
	// into one dial, so a burst of lookup RPCs racing to reach a
	// not-yet-connected peer doesn't open (and immediately evict) one
	// redundant conn per racer.
	dialGroup singleflight.Group

	onConn   func(transport.Channel)
	onConnMu sync.RWMutex

	ctx       context.Context
	ctxCancel context.CancelFunc
	started   atomic.Bool
	wg        sync.WaitGroup

	log *wlog.Logger
}

// New builds a KademliaNode. Either transport may be nil, but not both:
// browser is nil for a node that never brokers browser peers (spec.md §1:
// browser nodes still need *some* native or already-connected peer to
// relay through, but a pure native node need not run its own browser
// transport).
func New(identity IdentityProvider, native transport.Transport, browser transport.Transport, opts ...Option) (*KademliaNode, error) {
	if native == nil && browser == nil {
		return nil, &NodeError{Op: "New", Message: "at least one transport is required"}
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	localID, err := identity.GenerateID()
	if err != nil {
		return nil, fmt.Errorf("node: generate identity: %w", err)
	}

	clk := clock.New()
	n := &KademliaNode{
		localID:   localID,
		cfg:       cfg,
		clk:       clk,
		rt:        kademlia.NewRoutingTable(localID, cfg.Kademlia, clk),
		store:     store.New(clk),
		native:    native,
		browser:   browser,
		lookupSem: semaphore.NewWeighted(int64(cfg.MaxConcurrentLookups)),
		log:       wlog.Get("node"),
	}
	n.peers = newPeerTable(cfg.MaxPeers, n.rt)

	n.signaler = signaling.New(localID, browserOfferAnswerer{n}, relayLookupAdapter{n}, n.connectRPC, n.iceRPC, n.onSignalingEstablished)

	return n, nil
}

// LocalID returns this node's identifier.
func (n *KademliaNode) LocalID() types.ID { return n.localID }

// Start begins accepting connections and running the periodic
// maintenance tasks of spec.md §4.6.
func (n *KademliaNode) Start(ctx context.Context) error {
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	n.ctx, n.ctxCancel = context.WithCancel(ctx)

	if n.native != nil {
		n.wg.Add(1)
		go n.acceptLoop(n.native)
	}
	if n.browser != nil {
		n.wg.Add(1)
		go n.acceptLoop(n.browser)
	}

	n.wg.Add(4)
	go n.gcLoop()
	go n.republishLoop()
	go n.refreshLoop()
	go n.pingLoop()

	n.log.Info("node started", "id", n.localID.ShortString())
	return nil
}

// Close stops all background work and tears down every open channel.
func (n *KademliaNode) Close() error {
	if !n.started.CompareAndSwap(true, false) {
		return ErrClosed
	}
	n.ctxCancel()

	// Channels are closed before waiting: a read loop blocked in Recv
	// only returns once its channel is closed.
	for _, c := range n.peers.all() {
		c.close()
	}
	if n.native != nil {
		n.native.Close()
	}
	if n.browser != nil {
		n.browser.Close()
	}
	n.wg.Wait()
	return nil
}

// OnConnection registers a callback invoked for every inbound channel
// (spec.md §4.6's on_connection hook), letting the hosting application
// layer its own protocol on top.
func (n *KademliaNode) OnConnection(fn func(transport.Channel)) {
	n.onConnMu.Lock()
	defer n.onConnMu.Unlock()
	n.onConn = fn
}

func (n *KademliaNode) fireOnConnection(ch transport.Channel) {
	n.onConnMu.RLock()
	fn := n.onConn
	n.onConnMu.RUnlock()
	if fn != nil {
		fn(ch)
	}
}

// onSignalingEstablished adopts the channel produced when this node
// answered a remote's offer directly (HandleConnect's destination
// branch) — the one case where a channel comes into existence without
// this node having called getOrDial itself.
func (n *KademliaNode) onSignalingEstablished(remote types.ID, ch transport.Channel) {
	n.adoptConn(remote, ch, types.Contact{Kind: types.ContactBrowser})
}

func (n *KademliaNode) acceptLoop(tr transport.Transport) {
	defer n.wg.Done()
	for {
		select {
		case acc, ok := <-tr.Accept():
			if !ok {
				return
			}
			n.adoptConn(acc.PeerID, acc.Channel, types.Contact{Kind: acc.Channel.Kind()})
		case <-n.ctx.Done():
			return
		}
	}
}

// adoptConn wraps ch as this peer's sole conn, evicting any previous
// one, inserts peer into the routing table, and starts its read loop.
func (n *KademliaNode) adoptConn(id types.ID, ch transport.Channel, fallbackContact types.Contact) {
	info, ok := n.rt.Get(id)
	if !ok {
		info = types.NodeInfo{ID: id, Contact: fallbackContact}
	}
	n.registerConn(info, ch)
	n.rt.Insert(n.ctx, info, n.pinger)
	n.fireOnConnection(ch)
}

// registerConn wraps ch as peer's sole conn (evicting whatever it
// displaces) and starts its read loop. Shared by every path that
// produces a new channel: inbound accept, outbound dial, and an
// answered signaling handshake.
func (n *KademliaNode) registerConn(peer types.NodeInfo, ch transport.Channel) *conn {
	c := newConn(peer, ch)
	if old := n.peers.put(c); old != nil {
		old.close()
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		c.serve(n.ctx, n.log, n.handleRequest)
		n.peers.remove(peer.ID)
	}()
	return c
}

// pinger implements kademlia.Pinger: it issues a real PING RPC over
// whatever conn this node holds (or can open) to peer, used by
// RoutingTable.Insert's ping-before-evict policy (spec.md §4.1).
func (n *KademliaNode) pinger(ctx context.Context, peer types.NodeInfo) bool {
	c, err := n.getOrDial(ctx, peer)
	if err != nil {
		return false
	}
	_, err = c.call(ctx, rpc.TypePing, rpc.NewPingBody())
	return err == nil
}

// getOrDial returns the open conn to peer, dialing one if none exists.
// For native contacts this dials directly; for browser contacts it asks
// the signaler to broker a channel through whichever peers this node
// currently holds (spec.md §4.4).
func (n *KademliaNode) getOrDial(ctx context.Context, peer types.NodeInfo) (*conn, error) {
	if c, ok := n.peers.get(peer.ID); ok {
		return c, nil
	}

	key := peer.ID.String()
	v, err, _ := n.dialGroup.Do(key, func() (any, error) {
		if c, ok := n.peers.get(peer.ID); ok {
			return c, nil
		}
		switch peer.Contact.Kind {
		case types.ContactNative:
			if n.native == nil {
				return nil, ErrNoTransportForContact
			}
			ch, dialErr := n.native.Dial(ctx, peer)
			if dialErr != nil {
				return nil, dialErr
			}
			return n.registerConn(peer, ch), nil

		case types.ContactBrowser:
			sid := newSessionID()
			n.log.Debug("starting relay handshake", "session", sid, "peer", peer.ID.ShortString())
			ch, dialErr := n.signaler.Connect(ctx, peer.ID, n.relayChannels())
			if dialErr != nil {
				n.log.Debug("relay handshake failed", "session", sid, "peer", peer.ID.ShortString(), "err", dialErr)
				return nil, dialErr
			}
			n.log.Debug("relay handshake established", "session", sid, "peer", peer.ID.ShortString())
			return n.registerConn(peer, ch), nil

		default:
			return nil, ErrNoTransportForContact
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*conn), nil
}

// relayChannels returns every channel this node currently holds, as
// candidate relays for a browser dial (spec.md §4.4: "A may try
// multiple relays in parallel").
func (n *KademliaNode) relayChannels() []transport.Channel {
	conns := n.peers.all()
	out := make([]transport.Channel, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.channel)
	}
	return out
}

// relayLookupAdapter exposes the peer table as signaling.RelayLookup.
type relayLookupAdapter struct{ n *KademliaNode }

func (a relayLookupAdapter) ChannelTo(id types.ID) (transport.Channel, bool) {
	c, ok := a.n.peers.get(id)
	if !ok {
		return nil, false
	}
	return c.channel, true
}

// browserOfferAnswerer exposes this node's browser transport as
// signaling.OfferAnswerer. On a purely-native node (browser == nil) both
// methods return ErrNoTransportForContact; CreateOffer is still reached
// there whenever getOrDial is asked for a browser contact.
type browserOfferAnswerer struct{ n *KademliaNode }

func (a browserOfferAnswerer) CreateOffer(ctx context.Context, remote types.ID) ([]byte, signaling.PendingConn, error) {
	if a.n.browser == nil {
		return nil, nil, ErrNoTransportForContact
	}
	oa, ok := a.n.browser.(interface {
		CreateOffer(context.Context, types.ID) ([]byte, signaling.PendingConn, error)
	})
	if !ok {
		return nil, nil, ErrNoTransportForContact
	}
	return oa.CreateOffer(ctx, remote)
}

func (a browserOfferAnswerer) AcceptOffer(ctx context.Context, remote types.ID, offer []byte) ([]byte, signaling.PendingConn, error) {
	if a.n.browser == nil {
		return nil, nil, ErrNoTransportForContact
	}
	oa, ok := a.n.browser.(interface {
		AcceptOffer(context.Context, types.ID, []byte) ([]byte, signaling.PendingConn, error)
	})
	if !ok {
		return nil, nil, ErrNoTransportForContact
	}
	return oa.AcceptOffer(ctx, remote, offer)
}

// Stats is the read-only introspection snapshot supplemented from
// original_source/server/src/server_stats.rs.
type Stats struct {
	LocalID           string
	RoutingTableSize  int
	BucketSizes       []int
	PeerCount         int
	RecordCount       int
	ActiveLookups     int64
}

func (n *KademliaNode) Stats() Stats {
	return Stats{
		LocalID:          n.localID.String(),
		RoutingTableSize: n.rt.Size(),
		BucketSizes:      n.rt.BucketSizes(),
		PeerCount:        n.peers.len(),
		RecordCount:      n.store.Len(),
		ActiveLookups:    atomic.LoadInt64(&n.activeLookups),
	}
}
