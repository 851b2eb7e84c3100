package store

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/SnowyCoder/wdht/internal/wlog"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// RecordStore holds every Record this node is currently caching or
// authoritatively publishing, keyed by (Key, Publisher) per spec.md §4.2.
// It is safe for concurrent use.
type RecordStore struct {
	mu      sync.RWMutex
	clk     clock.Clock
	records map[types.ID]map[types.ID]types.Record // key -> publisher -> record
	log     *wlog.Logger
}

// New builds an empty RecordStore. clk defaults to the real wall clock
// when nil.
func New(clk clock.Clock) *RecordStore {
	if clk == nil {
		clk = clock.New()
	}
	return &RecordStore{
		clk:     clk,
		records: make(map[types.ID]map[types.ID]types.Record),
		log:     wlog.Get("store.record"),
	}
}

// Put inserts or overwrites rec. A collision on (Key, Publisher) resets
// the TTL clock and reports replaced=true, matching spec.md §4.2's
// republish semantics (receivers treat repeat STOREs as overwrites).
func (s *RecordStore) Put(rec types.Record) (replaced bool, err error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byPublisher, ok := s.records[rec.Key]
	if !ok {
		byPublisher = make(map[types.ID]types.Record)
		s.records[rec.Key] = byPublisher
	}
	_, replaced = byPublisher[rec.Publisher]
	byPublisher[rec.Publisher] = rec
	return replaced, nil
}

// Get returns every live record stored under key, running an opportunistic
// GC pass over just that key first (spec.md §4.2: gc runs "on every
// query" in addition to its 30s cadence).
func (s *RecordStore) Get(key types.ID) []types.Record {
	now := s.clk.Now()

	s.mu.Lock()
	byPublisher, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	for pub, rec := range byPublisher {
		if rec.Expired(now) {
			delete(byPublisher, pub)
		}
	}
	if len(byPublisher) == 0 {
		delete(s.records, key)
	}
	out := make([]types.Record, 0, len(byPublisher))
	for _, rec := range byPublisher {
		out = append(out, rec)
	}
	s.mu.Unlock()
	return out
}

// Delete removes a single (key, publisher) record, used when a publisher
// explicitly retracts a value (TTL=0 STORE, spec.md §8).
func (s *RecordStore) Delete(key, publisher types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPublisher, ok := s.records[key]
	if !ok {
		return false
	}
	if _, ok := byPublisher[publisher]; !ok {
		return false
	}
	delete(byPublisher, publisher)
	if len(byPublisher) == 0 {
		delete(s.records, key)
	}
	return true
}

// GC sweeps every record and drops expired ones. It is O(live records),
// run on a 30s timer by KademliaNode and opportunistically inside Get.
// Returns the number of records removed.
func (s *RecordStore) GC(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, byPublisher := range s.records {
		for pub, rec := range byPublisher {
			if rec.Expired(now) {
				delete(byPublisher, pub)
				removed++
			}
		}
		if len(byPublisher) == 0 {
			delete(s.records, key)
		}
	}
	if removed > 0 {
		s.log.Debug("gc swept expired records", "removed", removed)
	}
	return removed
}

// OwnedKeys returns every key for which publisher holds at least one live
// record, used to drive periodic republish.
func (s *RecordStore) OwnedKeys(publisher types.ID) []types.ID {
	now := s.clk.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []types.ID
	for key, byPublisher := range s.records {
		rec, ok := byPublisher[publisher]
		if ok && !rec.Expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the total number of (key, publisher) records currently
// stored, expired or not.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, byPublisher := range s.records {
		total += len(byPublisher)
	}
	return total
}
