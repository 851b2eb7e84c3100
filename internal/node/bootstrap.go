package node

import (
	"context"
	"math/bits"

	"go.uber.org/multierr"

	"github.com/SnowyCoder/wdht/internal/kademlia"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// bootstrapIDBits is the bucket count, one per bit of the identifier
// space, mirroring kademlia.RoutingTable's own unexported numBuckets.
const bootstrapIDBits = types.IDLen * 8

// Bootstrap implements spec.md §4.7: dial every seed and insert each one
// that answers into the routing table, self-lookup to
// populate buckets from the replies, then refresh every bucket at or
// beyond a rough network-size estimate. Per-seed dial failures are
// aggregated with go.uber.org/multierr and surfaced only if every seed
// failed (ErrAllSeedsFailed); any lone success is enough to proceed.
func (n *KademliaNode) Bootstrap(ctx context.Context, seeds []types.NodeInfo) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.BootstrapTimeout)
	defer cancel()

	var errs error
	answered := 0
	for _, seed := range seeds {
		if _, err := n.getOrDial(ctx, seed); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		n.rt.Insert(ctx, seed, n.pinger)
		answered++
	}
	if answered == 0 {
		n.log.Warn("bootstrap: every seed failed", "seeds", len(seeds), "err", errs)
		return multierr.Append(ErrAllSeedsFailed, errs)
	}

	if _, err := n.runLookup(ctx, n.localID, kademlia.FindNode); err != nil && err != ErrNoPeers {
		return err
	}

	estimate := networkSizeEstimate(n.rt.Size())
	for idx := estimate; idx < bootstrapIDBits; idx++ {
		target, err := n.rt.RandomIDInBucket(idx)
		if err != nil {
			continue
		}
		if _, err := n.runLookup(ctx, target, kademlia.FindNode); err != nil && err != ErrNoPeers {
			continue
		}
		n.rt.MarkBucketRefreshed(idx)
	}

	if n.rt.Size() == 0 {
		return ErrAllSeedsFailed
	}
	n.log.Info("bootstrap complete", "routing_table_size", n.rt.Size())
	return nil
}

// networkSizeEstimate resolves spec.md §4.7's "log₂(network-size-estimate)"
// into a concrete bucket-index threshold. With no network census
// available, the routing table's own current population after the
// self-lookup is the best estimate this node has of how deep the ring
// runs; log2 of that population is the bucket index beyond which it's
// worth spending extra random-ID lookups refreshing.
func networkSizeEstimate(routingTableSize int) int {
	if routingTableSize <= 0 {
		return 0
	}
	return bits.Len(uint(routingTableSize))
}
