// Package rpc implements the wire codec and request/response correlation
// that every KademliaNode speaks over a Transport channel: JSON frames
// tagged with a monotonic per-channel correlation ID (spec.md §4.3),
// and a PendingRpc table that resolves responses to their callers or
// times them out. Grounded on the teacher's varint-framed RPC codec
// (internal/protocol/messaging/codec.go) for the framing discipline, with
// the body format swapped from protobuf to JSON per spec.md §6's wire
// contract.
package rpc
