package node

import (
	"context"

	"github.com/SnowyCoder/wdht/internal/kademlia"
	"github.com/SnowyCoder/wdht/internal/rpc"
)

// gcLoop sweeps expired records out of the store every GCInterval
// (spec.md §4.2).
func (n *KademliaNode) gcLoop() {
	defer n.wg.Done()
	t := n.clk.Ticker(n.cfg.GCInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			n.store.GC(n.clk.Now())
			n.cfg.Metrics.SetRecordStoreSize(n.store.Len())
			n.cfg.Metrics.SetRoutingTableSize(n.rt.Size())
			n.cfg.Metrics.SetPeerCount(n.peers.len())
		case <-n.ctx.Done():
			return
		}
	}
}

// republishLoop re-issues a STORE for every record this node authored to
// the current K closest peers for its key, every RepublishInterval
// (spec.md §4.2 and §9's republish-cadence Open Question — resolved by
// using the same interval for every owned key rather than staggering).
func (n *KademliaNode) republishLoop() {
	defer n.wg.Done()
	t := n.clk.Ticker(n.cfg.RepublishInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			n.republishOwned()
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *KademliaNode) republishOwned() {
	for _, key := range n.store.OwnedKeys(n.localID) {
		recs := n.store.Get(key)
		for _, rec := range recs {
			if rec.Publisher != n.localID {
				continue
			}
			if _, err := n.insertRecord(n.ctx, rec); err != nil {
				n.log.Debug("republish failed", "key", key.ShortString(), "err", err)
			}
		}
	}
}

// refreshLoop runs one random-ID lookup per stale bucket every
// RefreshInterval, the bucket-refresh mechanism of spec.md §4.1.
func (n *KademliaNode) refreshLoop() {
	defer n.wg.Done()
	t := n.clk.Ticker(n.cfg.RefreshInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			n.refreshStaleBuckets()
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *KademliaNode) refreshStaleBuckets() {
	for _, idx := range n.rt.StaleBuckets(n.cfg.RefreshInterval) {
		target, err := n.rt.RandomIDInBucket(idx)
		if err != nil {
			continue
		}
		n.runLookup(n.ctx, target, kademlia.FindNode)
		n.rt.MarkBucketRefreshed(idx)
	}
}

// pingLoop keeps least-recently-active peers' liveness current so
// RoutingTable.Insert's ping-before-evict check rarely needs to block on
// a cold PING (spec.md §5's PingInterval).
func (n *KademliaNode) pingLoop() {
	defer n.wg.Done()
	t := n.clk.Ticker(n.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			n.pingIdlePeers()
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *KademliaNode) pingIdlePeers() {
	for _, c := range n.peers.all() {
		c, peer := c, c.peer
		go func() {
			ctx, cancel := context.WithTimeout(n.ctx, n.cfg.Kademlia.RPCTimeout)
			defer cancel()
			if _, err := c.call(ctx, rpc.TypePing, rpc.NewPingBody()); err == nil {
				n.rt.MarkAlive(peer.ID)
			}
		}()
	}
}
