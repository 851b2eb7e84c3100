package node

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/SnowyCoder/wdht/internal/kademlia"
	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// runLookup drives one iterative lookup bounded by MaxConcurrentLookups
// (golang.org/x/sync/semaphore, spec.md §5). Seeds come from the local
// routing table; ErrNoPeers is returned without acquiring the semaphore
// when the table has nothing to seed with.
func (n *KademliaNode) runLookup(ctx context.Context, target types.ID, mode kademlia.Mode) (kademlia.Result, error) {
	seeds := n.rt.ClosestN(target, n.cfg.Kademlia.Alpha)
	if len(seeds) == 0 {
		return kademlia.Result{}, ErrNoPeers
	}
	if err := n.lookupSem.Acquire(ctx, 1); err != nil {
		return kademlia.Result{}, err
	}
	defer n.lookupSem.Release(1)

	n.incActiveLookups(1)
	defer n.incActiveLookups(-1)

	res := kademlia.Run(ctx, target, mode, seeds, n.cfg.Kademlia.BucketSize, n.cfg.Kademlia.Alpha, n.findNodeOrValueRPC, n.cacheOnPathStore)
	return res, nil
}

func (n *KademliaNode) incActiveLookups(delta int64) {
	n.cfg.Metrics.SetActiveLookups(atomic.AddInt64(&n.activeLookups, delta))
}

// Insert implements spec.md §4.6's insert(key, value, ttl): a lookup for
// the K closest peers to key followed by a STORE to each (and to this
// node's own store, so a query against the publisher's own node hits
// immediately per spec.md §8's insert/query property).
func (n *KademliaNode) Insert(ctx context.Context, key types.ID, value []byte, ttl time.Duration) (int, error) {
	if ttl < 0 || ttl > MaxTTL*time.Second {
		return 0, ErrTTLOutOfRange
	}
	rec := types.Record{Key: key, Publisher: n.localID, Value: value, InsertedAt: n.clk.Now(), TTL: ttl}
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	return n.insertRecord(ctx, rec)
}

// insertRecord drives the closest-N STORE fan-out shared by Insert and
// the republish loop.
func (n *KademliaNode) insertRecord(ctx context.Context, rec types.Record) (int, error) {
	if _, err := n.store.Put(rec); err != nil {
		return 0, err
	}

	res, err := n.runLookup(ctx, rec.Key, kademlia.FindNode)
	if err != nil {
		return 0, err
	}
	if len(res.Closest) == 0 {
		return 0, ErrNoPeers
	}

	acked := 0
	results := make(chan int, len(res.Closest))
	for _, peer := range res.Closest {
		peer := peer
		go func() {
			c, err := n.getOrDial(ctx, peer)
			if err != nil {
				results <- 0
				return
			}
			storeCtx, cancel := context.WithTimeout(ctx, n.cfg.Kademlia.RPCTimeout)
			defer cancel()
			if _, err := c.callStore(storeCtx, rec); err != nil {
				results <- 0
				return
			}
			results <- 1
		}()
	}
	for range res.Closest {
		acked += <-results
	}
	if acked == 0 {
		return 0, ErrInsertFailed
	}
	return acked, nil
}

// Query implements spec.md §4.6's query(key, max_results): a FIND_VALUE
// lookup capped at maxResults. It returns [] (not an error) when the
// lookup converges with no value found, and always checks this node's
// own store first so a publisher's immediate self-query succeeds without
// a network round trip.
func (n *KademliaNode) Query(ctx context.Context, key types.ID, maxResults int) ([]types.Record, error) {
	local := n.store.Get(key)
	if len(local) > 0 {
		if maxResults > 0 && len(local) > maxResults {
			local = local[:maxResults]
		}
		return local, nil
	}

	res, err := n.runLookup(ctx, key, kademlia.FindValue)
	if err != nil {
		if err == ErrNoPeers {
			return nil, nil
		}
		return nil, err
	}
	if len(res.Values) == 0 {
		return nil, nil
	}
	out := res.Values
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// Remove implements spec.md §4.6's remove(key): STORE with TTL=0 to the K
// closest peers and to this node's own store.
func (n *KademliaNode) Remove(ctx context.Context, key types.ID) error {
	n.store.Delete(key, n.localID)

	res, err := n.runLookup(ctx, key, kademlia.FindNode)
	if err != nil {
		if err == ErrNoPeers {
			return nil
		}
		return err
	}

	tombstone := types.Record{Key: key, Publisher: n.localID, InsertedAt: n.clk.Now(), TTL: 0}
	for _, peer := range res.Closest {
		peer := peer
		go func() {
			c, err := n.getOrDial(ctx, peer)
			if err != nil {
				return
			}
			storeCtx, cancel := context.WithTimeout(context.Background(), n.cfg.Kademlia.RPCTimeout)
			defer cancel()
			_, _ = c.callStore(storeCtx, tombstone)
		}()
	}
	return nil
}

// ConnectTo implements spec.md §4.6's connect_to(id) -> Channel: returns
// an already-held channel verbatim, or performs a lookup for id and
// dials the result. Transport/signaling errors surface unchanged.
func (n *KademliaNode) ConnectTo(ctx context.Context, id types.ID) (transport.Channel, error) {
	if c, ok := n.peers.get(id); ok {
		return c.channel, nil
	}

	res, err := n.runLookup(ctx, id, kademlia.FindNode)
	if err != nil {
		return nil, err
	}
	for _, peer := range res.Closest {
		if peer.ID == id {
			c, err := n.getOrDial(ctx, peer)
			if err != nil {
				return nil, err
			}
			return c.channel, nil
		}
	}
	return nil, ErrNoPeers
}
