package signaling

import "errors"

var (
	// ErrNoRelay is returned when no candidate relay holds a channel to
	// the dial target (spec.md §4.4).
	ErrNoRelay = errors.New("signaling: no relay holds a channel to the target")

	// ErrHandshakeTimeout is returned when the offer/answer/ICE exchange
	// does not complete within the 30s budget.
	ErrHandshakeTimeout = errors.New("signaling: handshake did not complete in time")

	// ErrRelayDenied is returned by a relay that does not hold a channel
	// to the requested target — a local, non-fatal failure for one
	// candidate relay, distinct from ErrNoRelay which means every
	// candidate was exhausted.
	ErrRelayDenied = errors.New("signaling: relay does not hold a channel to that peer")

	// ErrChainedRelay names a relay chain, which spec.md §9 disallows.
	// Nothing in this package returns it: a relay without a direct
	// channel to the target refuses with ErrRelayDenied instead.
	ErrChainedRelay = errors.New("signaling: relay chains are not permitted")
)
