package nativetransport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// channel wraps a net.Conn with the 4-byte length-prefixed framing every
// wdht Channel speaks; the RPC codec's JSON payloads are opaque to it.
type channel struct {
	conn   net.Conn
	peerID types.ID
	onDone func(types.ID)

	closeMu sync.Mutex
	closed  bool
}

func newChannel(conn net.Conn, peerID types.ID, onDone func(types.ID)) *channel {
	return &channel{conn: conn, peerID: peerID, onDone: onDone}
}

func (c *channel) Send(ctx context.Context, p []byte) error {
	if len(p) > transport.MaxMessageSize {
		return transport.ErrMessageTooLarge
	}
	applyDeadline(ctx, c.conn)
	defer c.conn.SetDeadline(noDeadline)

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := c.conn.Write(hdr[:]); err != nil {
		return fmt.Errorf("nativetransport: write length: %w", err)
	}
	if _, err := c.conn.Write(p); err != nil {
		return fmt.Errorf("nativetransport: write payload: %w", err)
	}
	return nil
}

func (c *channel) Recv(ctx context.Context) ([]byte, error) {
	applyDeadline(ctx, c.conn)
	defer c.conn.SetDeadline(noDeadline)

	var hdr [4]byte
	if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
		return nil, c.translateReadErr(err)
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length > transport.MaxMessageSize {
		return nil, transport.ErrMessageTooLarge
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, c.translateReadErr(err)
	}
	return buf, nil
}

func (c *channel) translateReadErr(err error) error {
	if err == io.EOF {
		return transport.ErrChannelClosed
	}
	return err
}

func (c *channel) RemoteID() (types.ID, bool) { return c.peerID, true }

func (c *channel) Kind() types.ContactKind { return types.ContactNative }

func (c *channel) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.onDone != nil {
		c.onDone(c.peerID)
	}
	return c.conn.Close()
}
