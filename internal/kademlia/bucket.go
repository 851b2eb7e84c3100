package kademlia

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/SnowyCoder/wdht/pkg/types"
)

// entry is a routing-table peer plus the bookkeeping RoutingTable needs: it
// augments types.NodeInfo (the immutable, wire-visible identity+contact
// pair) with mutable local state.
type entry struct {
	info       types.NodeInfo
	lastActive time.Time
}

// kbucket holds at most BucketSize entries for one distance range,
// least-recently-active first, plus a small replacement cache of
// candidates that arrived while the bucket was full (SPEC_FULL.md §12).
type kbucket struct {
	mu sync.Mutex

	size        int
	replaceSize int
	clk         clock.Clock

	entries     []entry // index 0 = least-recently-active
	replacement []entry // index 0 = most-recently-seen

	lastRefreshed time.Time
}

func newKBucket(size, replaceSize int, clk clock.Clock) *kbucket {
	return &kbucket{
		size:          size,
		replaceSize:   replaceSize,
		clk:           clk,
		lastRefreshed: clk.Now(),
	}
}

func (b *kbucket) find(id types.ID) (entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.info.ID == id {
			return e, true
		}
	}
	return entry{}, false
}

// touch moves id to the tail (most-recently-active) if present, and reports
// whether it was found.
func (b *kbucket) touch(id types.ID, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.info.ID == id {
			e.lastActive = now
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			b.entries = append(b.entries, e)
			return true
		}
	}
	return false
}

// insertResult tells the caller what happened and, on full, who should be
// pinged before evicting.
type insertResult int

const (
	inserted insertResult = iota
	alreadyPresent
	fullNeedsPing
)

// tryInsert appends info if there is a free slot or the peer is already
// present (refreshing its position); otherwise it reports fullNeedsPing and
// the caller (RoutingTable) is responsible for pinging the head and calling
// either evictHeadAndInsert or promoteFromReplacement.
func (b *kbucket) tryInsert(info types.NodeInfo, now time.Time) insertResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e.info.ID == info.ID {
			e.info = info
			e.lastActive = now
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			b.entries = append(b.entries, e)
			return alreadyPresent
		}
	}

	if len(b.entries) < b.size {
		b.entries = append(b.entries, entry{info: info, lastActive: now})
		return inserted
	}

	b.addReplacement(info, now)
	return fullNeedsPing
}

func (b *kbucket) addReplacement(info types.NodeInfo, now time.Time) {
	for i, e := range b.replacement {
		if e.info.ID == info.ID {
			b.replacement = append(b.replacement[:i], b.replacement[i+1:]...)
			break
		}
	}
	b.replacement = append([]entry{{info: info, lastActive: now}}, b.replacement...)
	if len(b.replacement) > b.replaceSize {
		b.replacement = b.replacement[:b.replaceSize]
	}
}

// head returns the least-recently-active entry, used as the ping target
// when the bucket is full and a new candidate arrives.
func (b *kbucket) head() (types.NodeInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return types.NodeInfo{}, false
	}
	return b.entries[0].info, true
}

// evictHeadAndInsert removes the head (it failed to respond to the ping)
// and appends candidate in its place. addReplacement already queued
// candidate in the replacement cache when the bucket was found full
// (tryInsert); it must come back out here, or a later remove could
// promote that same ID out of the cache and duplicate it in entries.
func (b *kbucket) evictHeadAndInsert(candidate types.NodeInfo, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) > 0 {
		b.entries = b.entries[1:]
	}
	for i, e := range b.replacement {
		if e.info.ID == candidate.ID {
			b.replacement = append(b.replacement[:i], b.replacement[i+1:]...)
			break
		}
	}
	b.entries = append(b.entries, entry{info: candidate, lastActive: now})
}

// keepHeadDiscardCandidate is called when the head answered the ping: the
// head moves to the tail and the new candidate stays out of the bucket,
// per spec.md §4.1's insertion policy; it remains only in the replacement
// cache, where tryInsert already queued it.
func (b *kbucket) keepHeadDiscardCandidate(headID types.ID, now time.Time) {
	b.touch(headID, now)
}

func (b *kbucket) remove(id types.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.info.ID == id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			if len(b.replacement) > 0 {
				promoted := b.replacement[0]
				b.replacement = b.replacement[1:]
				b.entries = append(b.entries, promoted)
			}
			return true
		}
	}
	for i, e := range b.replacement {
		if e.info.ID == id {
			b.replacement = append(b.replacement[:i], b.replacement[i+1:]...)
			return true
		}
	}
	return false
}

func (b *kbucket) all() []types.NodeInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.NodeInfo, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.info
	}
	return out
}

func (b *kbucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *kbucket) isStale(now time.Time, interval time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastRefreshed) > interval
}

func (b *kbucket) markRefreshed(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRefreshed = now
}
