package node

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SnowyCoder/wdht/internal/kademlia"
	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/internal/wlog"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// peerTable is the "exactly one channel per peer" map of spec.md §3
// (Channel lifecycle) and §9 ("Ownership of channels"), bounded at
// MaxPeers with least-recently-active eviction (spec.md §5) once a
// member isn't protected by routing-table membership — adapting the
// scoring idea in the teacher's internal/core/connmgr/trimmer.go to a
// plain LRU, since bucket membership already supplies the "protect this
// one" signal the trimmer otherwise computes from connection scores.
type peerTable struct {
	mu  sync.Mutex
	lru *lru.Cache[types.ID, *conn]
	cap int
	rt  *kademlia.RoutingTable
	log *wlog.Logger
}

func newPeerTable(cap int, rt *kademlia.RoutingTable) *peerTable {
	// The underlying cache is unbounded from the library's point of
	// view; peerTable enforces the cap itself so it can skip
	// routing-table members instead of always evicting the oldest.
	c, _ := lru.New[types.ID, *conn](1 << 20)
	return &peerTable{lru: c, cap: cap, rt: rt, log: wlog.Get("node.peers")}
}

// get returns the live conn for id, marking it recently-used.
func (t *peerTable) get(id types.ID) (*conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Get(id)
}

// put registers c as the sole channel for its peer, evicting the oldest
// unprotected entry if the table is now over cap. Returns the conn that
// was displaced under this id, if any (the caller closes it).
func (t *peerTable) put(c *conn) *conn {
	t.mu.Lock()
	defer t.mu.Unlock()

	var displaced *conn
	if old, ok := t.lru.Peek(c.peer.ID); ok {
		displaced = old
	}
	t.lru.Add(c.peer.ID, c)
	t.evictOverCap()
	return displaced
}

// evictOverCap drops least-recently-used entries that are not routing
// table members until the table is back at cap, or gives up once every
// remaining entry is protected (a soft cap, per spec.md §5).
func (t *peerTable) evictOverCap() {
	for t.lru.Len() > t.cap {
		keys := t.lru.Keys() // oldest first
		evicted := false
		for _, id := range keys {
			if _, inTable := t.rt.Get(id); inTable {
				continue
			}
			if c, ok := t.lru.Peek(id); ok {
				t.lru.Remove(id)
				go c.close()
				t.log.Debug("evicted peer over cap", "peer", id.ShortString())
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

func (t *peerTable) remove(id types.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Remove(id)
}

func (t *peerTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

// byChannel finds the conn wrapping ch, used to turn a raw
// transport.Channel handed to the signaling package back into the *conn
// that owns its codec and pending table (signaling.ConnectRPC/ICERPC are
// typed over transport.Channel so that package stays free of an RPC
// dependency).
func (t *peerTable) byChannel(ch transport.Channel) (*conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.lru.Keys() {
		if c, ok := t.lru.Peek(id); ok && c.channel == ch {
			return c, true
		}
	}
	return nil, false
}

func (t *peerTable) all() []*conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*conn, 0, t.lru.Len())
	for _, id := range t.lru.Keys() {
		if c, ok := t.lru.Peek(id); ok {
			out = append(out, c)
		}
	}
	return out
}
