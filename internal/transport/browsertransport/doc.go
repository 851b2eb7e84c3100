// Package browsertransport implements the browser side of wdht's dual
// transport model: nodes reachable only through a WebRTC data channel,
// opened by peer-assisted signaling (internal/signaling) rather than a
// direct dial. It implements signaling.OfferAnswerer and
// signaling.PendingConn against github.com/pion/webrtc/v4, and
// transport.Channel/transport.Transport so the rest of the node treats a
// browser peer identically to a native one once its channel is open.
//
// Trickle ICE is intentionally not streamed candidate-by-candidate: each
// offer/answer waits for ICE gathering to finish before being returned,
// so the exchange fits inside the single CONNECT round-trip spec.md §4.4
// describes. PendingConn.AddICECandidate adds a late candidate to a
// pending connection, but nothing in this module calls it: ICE RPC
// fragments that reach their destination node are dropped there.
package browsertransport
