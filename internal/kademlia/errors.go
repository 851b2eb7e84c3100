package kademlia

import "errors"

var (
	// ErrNoPeers names the empty-routing-table case of spec.md §7's
	// LookupError. Run never returns it; internal/node checks for an
	// empty table before starting a lookup and returns its own ErrNoPeers.
	ErrNoPeers = errors.New("kademlia: routing table is empty")

	// ErrLookupCanceled names a lookup abandoned before convergence. Run
	// never returns it: on cancellation Run returns the partial Result.
	ErrLookupCanceled = errors.New("kademlia: lookup canceled")
)
