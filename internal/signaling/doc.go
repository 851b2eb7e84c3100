// Package signaling implements the single-hop, peer-assisted WebRTC
// handshake relay of spec.md §4.4: when node A wants to reach node B
// with no direct transport, A finds relays that already hold a channel
// to B (via a Kademlia lookup performed by the caller) and asks one to
// forward A's offer to B, relaying the answer and any ICE fragments
// back until the direct channel opens.
//
// The package is transport-agnostic: it depends only on small
// interfaces and functions (OfferAnswerer, PendingConn, RelayLookup,
// ConnectRPC, ICERPC) supplied by internal/node, so it carries no
// pion/webrtc import of its own. Connect sends one CONNECT per candidate
// relay, in parallel, as spec.md §4.4 describes ("A may try multiple
// relays in parallel"); offers to several targets are not batched into
// one envelope.
package signaling
