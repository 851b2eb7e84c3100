package nativetransport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/internal/wlog"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// DialTimeout bounds a single TCP dial attempt plus identity handshake.
const DialTimeout = 10 * time.Second

// Transport dials and accepts plain TCP connections, prefixing every
// connection with a fixed 20-byte identity handshake (both sides send
// their own node ID before the RPC codec takes over).
type Transport struct {
	localID   types.ID
	localAddr string

	listener net.Listener
	accepted chan transport.Accepted

	connsMu sync.Mutex
	conns   map[types.ID]*channel

	closed atomic.Bool
	log    *wlog.Logger
}

// Listen binds addr and starts accepting handshaking connections.
func Listen(localID types.ID, addr string) (*Transport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nativetransport: listen on %s: %w", addr, err)
	}
	t := &Transport{
		localID:   localID,
		localAddr: ln.Addr().String(),
		listener:  ln,
		accepted:  make(chan transport.Accepted, 32),
		conns:     make(map[types.ID]*channel),
		log:       wlog.Get("transport.native"),
	}
	go t.acceptLoop()
	return t, nil
}

func (t *Transport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() {
				return
			}
			t.log.Warn("accept failed", "err", err)
			continue
		}
		go t.handleAccepted(conn)
	}
}

func (t *Transport) handleAccepted(conn net.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()

	peerID, err := handshakeAccept(ctx, conn, t.localID)
	if err != nil {
		t.log.Warn("handshake failed", "err", err)
		conn.Close()
		return
	}

	ch := newChannel(conn, peerID, t.forget)
	t.connsMu.Lock()
	t.conns[peerID] = ch
	t.connsMu.Unlock()

	select {
	case t.accepted <- transport.Accepted{PeerID: peerID, Channel: ch}:
	default:
		t.log.Warn("accept queue full, dropping connection", "peer", peerID.ShortString())
		ch.Close()
	}
}

// Dial opens a TCP connection to peer and performs the identity
// handshake. peer.Contact.Addr must be a host:port string.
func (t *Transport) Dial(ctx context.Context, peer types.NodeInfo) (transport.Channel, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", peer.Contact.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
	}

	if err := handshakeDial(ctx, conn, t.localID); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, transport.ErrDialTimeout
		}
		return nil, fmt.Errorf("%w: %v", transport.ErrRejected, err)
	}

	ch := newChannel(conn, peer.ID, t.forget)
	t.connsMu.Lock()
	t.conns[peer.ID] = ch
	t.connsMu.Unlock()
	return ch, nil
}

func (t *Transport) forget(id types.ID) {
	t.connsMu.Lock()
	delete(t.conns, id)
	t.connsMu.Unlock()
}

func (t *Transport) Accept() <-chan transport.Accepted { return t.accepted }

func (t *Transport) LocalContact() types.Contact {
	return types.Contact{Kind: types.ContactNative, Addr: t.localAddr}
}

// ConnCount reports the number of live connections, for metrics/tests.
func (t *Transport) ConnCount() int {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	return len(t.conns)
}

func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := t.listener.Close()

	t.connsMu.Lock()
	conns := t.conns
	t.conns = make(map[types.ID]*channel)
	t.connsMu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	close(t.accepted)
	return err
}
