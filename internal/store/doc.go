// Package store implements the in-memory RecordStore: a map from key to
// the set of (publisher, value, TTL) records held for it, with periodic
// and on-demand garbage collection. Grounded on the teacher's
// PeerRecordStore (internal/discovery/dht/peer_record_store.go), adapted
// from a single-record-per-key authoritative directory to a
// multi-publisher keyed store, since spec.md §4.2 allows several
// publishers to hold independent records under the same key.
package store
