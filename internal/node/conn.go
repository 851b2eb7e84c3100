package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/SnowyCoder/wdht/internal/rpc"
	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/internal/wlog"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// conn is one open Channel to a peer, plus the correlation-ID bookkeeping
// needed to turn it into a request/response RPC link. A Channel already
// delineates discrete messages (spec.md §4.3); conn's codec only
// marshals/compresses the logical Frame that becomes one such message,
// it never frames a byte stream itself.
type conn struct {
	peer    types.NodeInfo
	channel transport.Channel
	codec   *rpc.Codec
	pending *rpc.PendingTable

	sendMu sync.Mutex

	// inboundSem bounds concurrently-handled inbound requests on this
	// channel (spec.md §5's per-channel pending-RPC cap).
	inboundSem chan struct{}
}

func newConn(peer types.NodeInfo, ch transport.Channel) *conn {
	return &conn{
		peer:       peer,
		channel:    ch,
		codec:      rpc.NewCodec(),
		pending:    rpc.NewPendingTable(),
		inboundSem: make(chan struct{}, MaxPendingPerChannel),
	}
}

// encode marshals f through the codec into one message payload.
func (c *conn) encode(f rpc.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.codec.WriteFrame(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *conn) decode(p []byte) (rpc.Frame, error) {
	return c.codec.ReadFrame(bytes.NewReader(p))
}

// send writes one frame as a single Channel message. Channel.Send is not
// guaranteed goroutine-safe against itself, so every write goes through
// sendMu.
func (c *conn) send(ctx context.Context, f rpc.Frame) error {
	payload, err := c.encode(f)
	if err != nil {
		return fmt.Errorf("node: encode frame: %w", err)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.channel.Send(ctx, payload)
}

// call sends a request body and blocks for its matching response,
// implementing the per-channel request/response correlation of spec.md
// §4.3.
func (c *conn) call(ctx context.Context, typ rpc.BodyType, body any) (rpc.Frame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return rpc.Frame{}, fmt.Errorf("node: marshal %s body: %w", typ, err)
	}
	id := c.pending.NextID()
	req := rpc.Frame{ID: id, Kind: rpc.KindRequest, Body: raw}
	if err := c.send(ctx, req); err != nil {
		return rpc.Frame{}, err
	}
	return c.pending.Wait(ctx, id)
}

// reply sends a response frame correlated to id.
func (c *conn) reply(ctx context.Context, id uint64, typ rpc.BodyType, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("node: marshal %s reply: %w", typ, err)
	}
	return c.send(ctx, rpc.Frame{ID: id, Kind: rpc.KindResponse, Body: raw})
}

// callStore issues a STORE RPC for rec and reports whether the peer
// acknowledged it.
func (c *conn) callStore(ctx context.Context, rec types.Record) (rpc.Frame, error) {
	reply, err := c.call(ctx, rpc.TypeStore, rpc.StoreBody{Type: rpc.TypeStore, Record: rec.ToWire()})
	if err != nil {
		return rpc.Frame{}, err
	}
	bodyType, err := rpc.PeekType(reply.Body)
	if err != nil {
		return rpc.Frame{}, ErrMalformedFrame
	}
	switch bodyType {
	case rpc.TypeAck:
		return reply, nil
	case rpc.TypeError:
		var body rpc.ErrorBody
		if err := json.Unmarshal(reply.Body, &body); err == nil {
			return rpc.Frame{}, &PeerFault{Code: body.Code, Message: body.Message}
		}
	}
	return rpc.Frame{}, ErrMalformedFrame
}

// cast sends a one-way request that expects no response, used for ICE
// fragment forwarding (spec.md §4.4: "it has no reply").
func (c *conn) cast(ctx context.Context, typ rpc.BodyType, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("node: marshal %s body: %w", typ, err)
	}
	return c.send(ctx, rpc.Frame{ID: c.pending.NextID(), Kind: rpc.KindRequest, Body: raw})
}

// serve reads frames off the channel until it closes, dispatching
// responses to their waiter and requests to handleRequest. It owns the
// channel's read side exclusively for its lifetime.
func (c *conn) serve(ctx context.Context, log *wlog.Logger, handleRequest func(ctx context.Context, c *conn, f rpc.Frame)) {
	for {
		raw, err := c.channel.Recv(ctx)
		if err != nil {
			c.pending.CloseAll()
			return
		}
		f, err := c.decode(raw)
		if err != nil {
			log.Warn("dropping malformed frame", "peer", c.peer.ID.ShortString(), "err", err)
			continue
		}
		switch f.Kind {
		case rpc.KindResponse:
			if !c.pending.Resolve(f.ID, f) {
				log.Debug("dropping response with no pending request", "peer", c.peer.ID.ShortString(), "id", f.ID)
			}
		case rpc.KindRequest:
			select {
			case c.inboundSem <- struct{}{}:
				go func() {
					defer func() { <-c.inboundSem }()
					handleRequest(ctx, c, f)
				}()
			default:
				log.Warn("dropping request, channel over pending cap", "peer", c.peer.ID.ShortString())
			}
		}
	}
}

func (c *conn) close() error {
	c.pending.CloseAll()
	return c.channel.Close()
}
