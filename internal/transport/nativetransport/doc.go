// Package nativetransport implements transport.Transport over plain TCP
// for long-lived native nodes. Grounded on the teacher's
// internal/core/transport/tcp.Transport (Dial/Listen, connection
// bookkeeping maps guarded by sync.RWMutex, atomic closed flag), adapted
// to wdht's Channel contract: each connection opens with a 20-byte
// identity handshake so the accept side learns the dialer's node ID
// before any RPC frame is exchanged.
package nativetransport
