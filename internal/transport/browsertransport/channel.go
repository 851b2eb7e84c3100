package browsertransport

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// channel adapts a pion DataChannel to transport.Channel.
type channel struct {
	dc     *webrtc.DataChannel
	pc     *webrtc.PeerConnection
	peerID types.ID

	mu       sync.Mutex
	inbox    chan []byte
	closed   bool
	closeErr error
}

func newChannel(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, peerID types.ID) *channel {
	c := &channel{dc: dc, pc: pc, peerID: peerID, inbox: make(chan []byte, 64)}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		select {
		case c.inbox <- msg.Data:
		default:
			// Inbox full: drop rather than block pion's message loop.
			// The RecordStore/lookup layers tolerate lost RPCs.
		}
	})
	dc.OnClose(func() { c.markClosed(transport.ErrChannelClosed) })
	return c
}

func (c *channel) markClosed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = err
	close(c.inbox)
}

func (c *channel) Send(ctx context.Context, p []byte) error {
	if len(p) > transport.MaxMessageSize {
		return transport.ErrMessageTooLarge
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrChannelClosed
	}
	return c.dc.Send(p)
}

func (c *channel) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return nil, transport.ErrChannelClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *channel) RemoteID() (types.ID, bool) { return c.peerID, true }

func (c *channel) Kind() types.ContactKind { return types.ContactBrowser }

func (c *channel) Close() error {
	c.markClosed(transport.ErrChannelClosed)
	c.dc.Close()
	return c.pc.Close()
}
