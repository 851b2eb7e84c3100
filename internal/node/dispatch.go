package node

import (
	"context"
	"encoding/json"

	"github.com/SnowyCoder/wdht/internal/kademlia"
	"github.com/SnowyCoder/wdht/internal/rpc"
	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// findNodeOrValueRPC implements kademlia.RPCFunc: it dials peer if needed,
// issues the request over that conn, and decodes whichever reply shape
// came back.
func (n *KademliaNode) findNodeOrValueRPC(ctx context.Context, peer types.NodeInfo, target types.ID, mode kademlia.Mode) (kademlia.RPCOutcome, error) {
	c, err := n.getOrDial(ctx, peer)
	if err != nil {
		return kademlia.RPCOutcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Kademlia.RPCTimeout)
	defer cancel()

	reqType := rpc.TypeFindNode
	if mode == kademlia.FindValue {
		reqType = rpc.TypeFindValue
	}
	n.cfg.Metrics.RecordRPCSent(string(reqType))

	var reply rpc.Frame
	if mode == kademlia.FindValue {
		reply, err = c.call(ctx, rpc.TypeFindValue, rpc.NewFindValueBody(target))
	} else {
		reply, err = c.call(ctx, rpc.TypeFindNode, rpc.NewFindNodeBody(target))
	}
	if err != nil {
		n.cfg.Metrics.RecordRPCError(string(reqType))
		return kademlia.RPCOutcome{}, err
	}
	n.rt.Insert(ctx, peer, n.pinger)

	bodyType, err := rpc.PeekType(reply.Body)
	if err != nil {
		return kademlia.RPCOutcome{}, ErrMalformedFrame
	}

	switch bodyType {
	case rpc.TypeRecords:
		var body rpc.RecordsBody
		if err := json.Unmarshal(reply.Body, &body); err != nil {
			return kademlia.RPCOutcome{}, ErrMalformedFrame
		}
		if len(body.Records) == 0 {
			return kademlia.RPCOutcome{}, nil
		}
		recs := make([]types.Record, 0, len(body.Records))
		for _, w := range body.Records {
			rec, err := types.RecordFromWire(w, n.clk.Now())
			if err != nil {
				return kademlia.RPCOutcome{}, ErrMalformedFrame
			}
			recs = append(recs, rec)
		}
		return kademlia.RPCOutcome{Values: recs}, nil

	case rpc.TypeNodes:
		var body rpc.NodesBody
		if err := json.Unmarshal(reply.Body, &body); err != nil {
			return kademlia.RPCOutcome{}, ErrMalformedFrame
		}
		peers := make([]types.NodeInfo, 0, len(body.Nodes))
		for _, w := range body.Nodes {
			info, err := types.FromWire(w)
			if err != nil || info.ID == n.localID {
				// A responder's routing table may hold this node itself
				// (it is a real peer from their side); the lookup must
				// never turn around and try to dial itself.
				continue
			}
			peers = append(peers, info)
		}
		return kademlia.RPCOutcome{Peers: peers}, nil

	case rpc.TypeError:
		var body rpc.ErrorBody
		if err := json.Unmarshal(reply.Body, &body); err == nil {
			return kademlia.RPCOutcome{}, &PeerFault{Code: body.Code, Message: body.Message}
		}
		return kademlia.RPCOutcome{}, ErrMalformedFrame

	default:
		return kademlia.RPCOutcome{}, ErrMalformedFrame
	}
}

// cacheOnPathStore implements kademlia.StoreFunc: the lookup engine calls
// it synchronously from its own driving goroutine but never waits on its
// outcome, so the actual RPC runs detached (spec.md §4.5).
func (n *KademliaNode) cacheOnPathStore(peer types.NodeInfo, rec types.Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Kademlia.RPCTimeout)
		defer cancel()
		c, err := n.getOrDial(ctx, peer)
		if err != nil {
			return
		}
		if _, err := c.call(ctx, rpc.TypeStore, rpc.StoreBody{Type: rpc.TypeStore, Record: rec.ToWire()}); err != nil {
			n.log.Debug("cache-on-path store failed", "peer", peer.ID.ShortString(), "err", err)
		}
	}()
}

// connectRPC implements signaling.ConnectRPC by routing the call through
// the *conn that owns ch's codec and pending table.
func (n *KademliaNode) connectRPC(ctx context.Context, ch transport.Channel, target types.ID, offer []byte) ([]byte, error) {
	c, ok := n.peers.byChannel(ch)
	if !ok {
		return nil, ErrNoTransportForContact
	}
	reply, err := c.call(ctx, rpc.TypeConnect, rpc.NewConnectBody(target, offer))
	if err != nil {
		return nil, err
	}
	bodyType, err := rpc.PeekType(reply.Body)
	if err != nil {
		return nil, ErrMalformedFrame
	}
	switch bodyType {
	case rpc.TypeAnswer:
		var body rpc.AnswerBody
		if err := json.Unmarshal(reply.Body, &body); err != nil {
			return nil, ErrMalformedFrame
		}
		return body.AnswerBytes, nil
	case rpc.TypeError:
		var body rpc.ErrorBody
		if err := json.Unmarshal(reply.Body, &body); err == nil {
			return nil, &PeerFault{Code: body.Code, Message: body.Message}
		}
		return nil, ErrMalformedFrame
	default:
		return nil, ErrMalformedFrame
	}
}

// iceRPC implements signaling.ICERPC: a one-way forward with no reply.
func (n *KademliaNode) iceRPC(ctx context.Context, ch transport.Channel, target types.ID, fragment []byte) error {
	c, ok := n.peers.byChannel(ch)
	if !ok {
		return ErrNoTransportForContact
	}
	return c.cast(ctx, rpc.TypeICE, rpc.NewICEBody(target, fragment))
}

// handleRequest dispatches one inbound request frame to its concrete
// handler and, for every type but ICE, sends the matching reply.
func (n *KademliaNode) handleRequest(ctx context.Context, c *conn, f rpc.Frame) {
	n.rt.MarkAlive(c.peer.ID)

	bodyType, err := rpc.PeekType(f.Body)
	if err != nil {
		n.log.Warn("dropping request with unreadable type", "peer", c.peer.ID.ShortString())
		return
	}
	n.cfg.Metrics.RecordRPCReceived(string(bodyType))

	switch bodyType {
	case rpc.TypePing:
		n.replyErr(ctx, c, f.ID, c.reply(ctx, f.ID, rpc.TypePing, rpc.NewPingBody()))

	case rpc.TypeFindNode:
		var body rpc.FindNodeBody
		if err := json.Unmarshal(f.Body, &body); err != nil {
			n.sendError(ctx, c, f.ID, "malformed", err.Error())
			return
		}
		target, err := types.IDFromHex(body.Target)
		if err != nil {
			n.sendError(ctx, c, f.ID, "malformed", "bad target id")
			return
		}
		n.replyErr(ctx, c, f.ID, c.reply(ctx, f.ID, rpc.TypeNodes, n.nodesBody(target)))

	case rpc.TypeFindValue:
		var body rpc.FindValueBody
		if err := json.Unmarshal(f.Body, &body); err != nil {
			n.sendError(ctx, c, f.ID, "malformed", err.Error())
			return
		}
		key, err := types.IDFromHex(body.Key)
		if err != nil {
			n.sendError(ctx, c, f.ID, "malformed", "bad key id")
			return
		}
		if recs := n.store.Get(key); len(recs) > 0 {
			wire := make([]types.RecordWire, 0, len(recs))
			for _, r := range recs {
				wire = append(wire, r.ToWire())
			}
			n.replyErr(ctx, c, f.ID, c.reply(ctx, f.ID, rpc.TypeRecords, rpc.RecordsBody{Type: rpc.TypeRecords, Records: wire}))
			return
		}
		n.replyErr(ctx, c, f.ID, c.reply(ctx, f.ID, rpc.TypeNodes, n.nodesBody(key)))

	case rpc.TypeStore:
		var body rpc.StoreBody
		if err := json.Unmarshal(f.Body, &body); err != nil {
			n.sendError(ctx, c, f.ID, "malformed", err.Error())
			return
		}
		n.handleStore(ctx, c, f.ID, body)

	case rpc.TypeConnect:
		var body rpc.ConnectBody
		if err := json.Unmarshal(f.Body, &body); err != nil {
			n.sendError(ctx, c, f.ID, "malformed", err.Error())
			return
		}
		target, err := types.IDFromHex(body.Target)
		if err != nil {
			n.sendError(ctx, c, f.ID, "malformed", "bad target id")
			return
		}
		sid := newSessionID()
		n.log.Debug("handling inbound connect", "session", sid, "from", c.peer.ID.ShortString(), "target", target.ShortString())
		answer, err := n.signaler.HandleConnect(ctx, c.peer.ID, target, body.SDP)
		if err != nil {
			n.log.Debug("inbound connect failed", "session", sid, "err", err)
			n.sendError(ctx, c, f.ID, "relay_denied", err.Error())
			return
		}
		n.replyErr(ctx, c, f.ID, c.reply(ctx, f.ID, rpc.TypeAnswer, rpc.AnswerBody{Type: rpc.TypeAnswer, AnswerBytes: answer}))

	case rpc.TypeICE:
		var body rpc.ICEBody
		if err := json.Unmarshal(f.Body, &body); err != nil {
			n.log.Debug("dropping malformed ice forward", "peer", c.peer.ID.ShortString())
			return
		}
		target, err := types.IDFromHex(body.Target)
		if err != nil {
			return
		}
		if err := n.signaler.HandleICE(ctx, c.peer.ID, target, body.Candidate); err != nil {
			n.log.Debug("ice forward dropped", "peer", c.peer.ID.ShortString(), "err", err)
		}

	default:
		n.log.Warn("dropping request of unexpected type", "peer", c.peer.ID.ShortString(), "type", bodyType)
	}
}

func (n *KademliaNode) nodesBody(target types.ID) rpc.NodesBody {
	closest := n.rt.ClosestN(target, n.cfg.Kademlia.BucketSize)
	wire := make([]types.PeerRecordWire, 0, len(closest))
	for _, info := range closest {
		wire = append(wire, info.ToWire())
	}
	return rpc.NodesBody{Type: rpc.TypeNodes, Nodes: wire}
}

// handleStore applies an inbound STORE per spec.md §4.2/§8: TTL=0 deletes,
// TTL beyond MaxTTL is refused, otherwise the record is (re)inserted.
func (n *KademliaNode) handleStore(ctx context.Context, c *conn, id uint64, body rpc.StoreBody) {
	if body.Record.TTLSeconds == 0 {
		key, err := types.IDFromHex(body.Record.Key.Key)
		pub, err2 := types.IDFromHex(body.Record.Publisher)
		if err != nil || err2 != nil {
			n.sendError(ctx, c, id, "malformed", "bad record id")
			return
		}
		n.store.Delete(key, pub)
		n.replyErr(ctx, c, id, c.reply(ctx, id, rpc.TypeAck, rpc.AckBody{Type: rpc.TypeAck, OK: true}))
		return
	}
	if body.Record.TTLSeconds > MaxTTL {
		n.sendError(ctx, c, id, "ttl_out_of_range", "ttl exceeds the maximum allowed")
		return
	}

	rec, err := types.RecordFromWire(body.Record, n.clk.Now())
	if err != nil {
		n.sendError(ctx, c, id, "malformed", err.Error())
		return
	}
	if _, err := n.store.Put(rec); err != nil {
		n.sendError(ctx, c, id, "value_too_large", err.Error())
		return
	}
	n.replyErr(ctx, c, id, c.reply(ctx, id, rpc.TypeAck, rpc.AckBody{Type: rpc.TypeAck, OK: true}))
}

func (n *KademliaNode) sendError(ctx context.Context, c *conn, id uint64, code, message string) {
	n.replyErr(ctx, c, id, c.reply(ctx, id, rpc.TypeError, rpc.ErrorBody{Type: rpc.TypeError, Code: code, Message: message}))
}

func (n *KademliaNode) replyErr(ctx context.Context, c *conn, id uint64, err error) {
	if err != nil {
		n.log.Debug("reply failed", "peer", c.peer.ID.ShortString(), "id", id, "err", err)
	}
}
