package rpc

import "errors"

var (
	// ErrFrameTooLarge is returned by the codec when an encoded or
	// advertised frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("rpc: frame exceeds channel size cap")

	// ErrTimeout is returned by PendingTable.Wait when no response
	// arrives before the RPC's deadline.
	ErrTimeout = errors.New("rpc: request timed out")

	// ErrClosed is returned to every pending request when the owning
	// channel is closed (spec.md §9, "Ownership of channels").
	ErrClosed = errors.New("rpc: channel closed")

	// ErrUnmatchedResponse is logged (not returned) when a response
	// frame's correlation ID has no pending entry.
	ErrUnmatchedResponse = errors.New("rpc: response has no matching pending request")
)
