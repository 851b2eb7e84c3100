// Package kademlia implements the k-bucket routing table (bucket.go,
// routing.go) and the α-parallel iterative lookup state machine
// (lookup.go) shared by every wdht node. Identifier-space math (XOR
// distance, bucket indexing) lives in pkg/types, since it is a value-type
// concern shared with the wire layer; this package only consumes it.
package kademlia
