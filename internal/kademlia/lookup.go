package kademlia

import (
	"context"
	"sort"
	"sync"

	"github.com/SnowyCoder/wdht/internal/wlog"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// Mode selects which Kademlia RPC an iterative lookup issues.
type Mode int

const (
	// FindNode collects the K closest known peers to a target ID.
	FindNode Mode = iota
	// FindValue additionally checks each contacted peer's record store
	// and terminates early on the first hit.
	FindValue
)

// RPCOutcome is what a single FIND_NODE/FIND_VALUE RPC returns.
type RPCOutcome struct {
	Peers []types.NodeInfo
	// Values holds every live record the target peer held for the key,
	// non-empty only for a FindValue lookup with a hit. A key may have
	// more than one record (one per publisher), and spec.md §4.6 returns
	// all of them, up to max_results — not just the first.
	Values []types.Record
}

// RPCFunc performs one outbound FIND_NODE or FIND_VALUE call. The engine
// treats a non-nil error identically regardless of cause (timeout,
// transport failure, malformed reply): the peer is marked contacted and
// failed, and the lookup continues (spec.md §7 error propagation).
type RPCFunc func(ctx context.Context, peer types.NodeInfo, target types.ID, mode Mode) (RPCOutcome, error)

// StoreFunc fires an asynchronous cache-on-path STORE; the engine does
// not wait for it and ignores its outcome.
type StoreFunc func(peer types.NodeInfo, rec types.Record)

// Result is what a converged lookup produces.
type Result struct {
	// Closest holds up to K peers, nearest first, drawn from every peer
	// that replied successfully during the lookup (not just the final
	// queue) — spec.md §4.5's "K closest contacted".
	Closest []types.NodeInfo
	// Values is non-empty only for a FindValue lookup that found at
	// least one record.
	Values []types.Record
}

type contactState struct {
	info    types.NodeInfo
	success bool
}

// lookupRun is one in-progress iterative lookup. It is not safe for
// concurrent use from more than the goroutine driving Run: the teacher's
// iterativeQuery assumes the same single-writer discipline.
type lookupRun struct {
	target types.ID
	mode   Mode
	k      int
	alpha  int

	rpc   RPCFunc
	store StoreFunc

	queue     []types.NodeInfo // uncontacted candidates, kept sorted by distance to target
	contacted map[types.ID]*contactState
	inFlight  map[types.ID]struct{}

	log *wlog.Logger
}

type rpcReply struct {
	peer    types.NodeInfo
	outcome RPCOutcome
	err     error
}

// Run drives one iterative lookup to convergence (or queue exhaustion) and
// returns its result. seeds must be non-empty; the caller (KademliaNode)
// is responsible for returning ErrNoPeers when the routing table has
// nothing to seed with.
func Run(ctx context.Context, target types.ID, mode Mode, seeds []types.NodeInfo, k, alpha int, rpc RPCFunc, store StoreFunc) Result {
	r := &lookupRun{
		target:    target,
		mode:      mode,
		k:         k,
		alpha:     alpha,
		rpc:       rpc,
		store:     store,
		contacted: make(map[types.ID]*contactState),
		inFlight:  make(map[types.ID]struct{}),
		log:       wlog.Get("kademlia.lookup"),
	}
	r.enqueue(seeds)
	return r.drive(ctx)
}

func (r *lookupRun) enqueue(infos []types.NodeInfo) {
	for _, info := range infos {
		if info.ID == r.target {
			continue
		}
		if _, done := r.contacted[info.ID]; done {
			continue
		}
		if _, inflight := r.inFlight[info.ID]; inflight {
			continue
		}
		dup := false
		for _, q := range r.queue {
			if q.ID == info.ID {
				dup = true
				break
			}
		}
		if !dup {
			r.queue = append(r.queue, info)
		}
	}
	sort.SliceStable(r.queue, func(i, j int) bool {
		return types.CompareDistance(r.queue[i].ID, r.queue[j].ID, r.target) < 0
	})
}

// kthContactedDistance returns the distance of the Kth closest
// successfully-contacted peer, or nil if fewer than k have replied.
func (r *lookupRun) kthContactedDistance() *types.ID {
	successful := make([]types.NodeInfo, 0, len(r.contacted))
	for _, c := range r.contacted {
		if c.success {
			successful = append(successful, c.info)
		}
	}
	if len(successful) < r.k {
		return nil
	}
	sort.SliceStable(successful, func(i, j int) bool {
		return types.CompareDistance(successful[i].ID, successful[j].ID, r.target) < 0
	})
	d := successful[r.k-1].ID.XOR(r.target)
	return &d
}

func (r *lookupRun) closerThan(id types.ID, bound *types.ID) bool {
	if bound == nil {
		return true
	}
	d := id.XOR(r.target)
	return d.Less(*bound)
}

// converged implements spec.md §4.5: done when the queue is exhausted, or
// the K closest contacted peers are all closer than every remaining
// uncontacted candidate.
func (r *lookupRun) converged() bool {
	if len(r.queue) == 0 && len(r.inFlight) == 0 {
		return true
	}
	kth := r.kthContactedDistance()
	if kth == nil {
		return false
	}
	for _, q := range r.queue {
		if r.closerThan(q.ID, kth) {
			return false
		}
	}
	return len(r.inFlight) == 0
}

func (r *lookupRun) popClosestUncontacted(bound *types.ID) (types.NodeInfo, bool) {
	if len(r.queue) == 0 {
		return types.NodeInfo{}, false
	}
	head := r.queue[0]
	if !r.closerThan(head.ID, bound) {
		return types.NodeInfo{}, false
	}
	r.queue = r.queue[1:]
	return head, true
}

func (r *lookupRun) drive(ctx context.Context) Result {
	// Derived so the found-early exit can cancel it too: without this,
	// stragglers still in flight when a value is found have no way to
	// unblock their `replies <- ...` send (replies is unbuffered and
	// nobody's reading it anymore) and wg.Wait() below hangs forever.
	ctx, cancel := context.WithCancel(ctx)

	replies := make(chan rpcReply)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	issue := func(peer types.NodeInfo) {
		r.inFlight[peer.ID] = struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := r.rpc(ctx, peer, r.target, r.mode)
			select {
			case replies <- rpcReply{peer: peer, outcome: outcome, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	var found []types.Record
	var holder *types.NodeInfo

	for {
		kth := r.kthContactedDistance()
		for len(r.inFlight) < r.alpha {
			peer, ok := r.popClosestUncontacted(kth)
			if !ok {
				break
			}
			issue(peer)
		}

		if found != nil || r.converged() || ctx.Err() != nil {
			break
		}

		select {
		case rep := <-replies:
			r.handleReply(rep)
			if r.mode == FindValue {
				if c := r.contacted[rep.peer.ID]; c != nil && rep.err == nil && len(rep.outcome.Values) > 0 {
					found = rep.outcome.Values
					h := rep.peer
					holder = &h
				}
			}
		case <-ctx.Done():
			goto finish
		}
	}

finish:
	closest := r.closestContacted()
	res := Result{Closest: closest}
	if found != nil {
		res.Values = found
		r.cacheOnPath(closest, holder, found[0])
	}
	return res
}

func (r *lookupRun) handleReply(rep rpcReply) {
	delete(r.inFlight, rep.peer.ID)
	if rep.err != nil {
		r.contacted[rep.peer.ID] = &contactState{info: rep.peer, success: false}
		return
	}
	r.contacted[rep.peer.ID] = &contactState{info: rep.peer, success: true}
	r.enqueue(rep.outcome.Peers)
}

func (r *lookupRun) closestContacted() []types.NodeInfo {
	successful := make([]types.NodeInfo, 0, len(r.contacted))
	for _, c := range r.contacted {
		if c.success {
			successful = append(successful, c.info)
		}
	}
	sort.SliceStable(successful, func(i, j int) bool {
		return types.CompareDistance(successful[i].ID, successful[j].ID, r.target) < 0
	})
	if len(successful) > r.k {
		successful = successful[:r.k]
	}
	return successful
}

// cacheOnPath implements the native-only optimisation from spec.md §4.5:
// the closest successfully contacted peer gets an async STORE, unless
// that peer is the holder itself (it already has the record) or its
// contact is not native.
// rec is the first of possibly several records found for the key; caching
// one representative record is enough to short-circuit the next lookup's
// walk to the holder.
func (r *lookupRun) cacheOnPath(closest []types.NodeInfo, holder *types.NodeInfo, rec types.Record) {
	if r.store == nil || len(closest) == 0 || holder == nil {
		return
	}
	target := closest[0]
	if target.ID == holder.ID {
		return
	}
	if target.Contact.Kind != types.ContactNative {
		return
	}
	r.store(target, rec)
}
