package kademlia

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SnowyCoder/wdht/pkg/types"
)

// fakeNetwork is a tiny in-memory Kademlia network used to exercise Run
// without any real transport, mirroring how the teacher's query_test.go
// stubs peer lookups with an in-process table.
type fakeNetwork struct {
	mu      sync.Mutex
	peers   map[types.ID][]types.NodeInfo  // id -> that peer's known neighbours
	holders map[types.ID][]types.Record    // peer id -> records it will return on FindValue
	unreach map[types.ID]bool
	calls   int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		peers:   make(map[types.ID][]types.NodeInfo),
		holders: make(map[types.ID][]types.Record),
		unreach: make(map[types.ID]bool),
	}
}

func (n *fakeNetwork) rpc(ctx context.Context, peer types.NodeInfo, target types.ID, mode Mode) (RPCOutcome, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.unreach[peer.ID] {
		return RPCOutcome{}, errors.New("unreachable")
	}
	out := RPCOutcome{Peers: n.peers[peer.ID]}
	if mode == FindValue {
		if recs, ok := n.holders[peer.ID]; ok {
			out.Values = recs
		}
	}
	return out, nil
}

func info(t *testing.T, id types.ID) types.NodeInfo {
	t.Helper()
	return types.NodeInfo{ID: id, Contact: types.Contact{Kind: types.ContactNative, Addr: "x"}}
}

func TestLookup_ConvergesOverLinearChain(t *testing.T) {
	target, err := types.RandomID()
	require.NoError(t, err)

	// Build a chain of IDs with decreasing distance to target by fixing
	// an increasing number of leading bits equal to target's.
	mkChainNode := func(prefixBits int) types.ID {
		id := target
		id[prefixBits/8] ^= 0x01 << uint(7-prefixBits%8)
		return id
	}

	n := newFakeNetwork()
	seedID := mkChainNode(2)
	midID := mkChainNode(6)
	closeID := mkChainNode(12)

	n.peers[seedID] = []types.NodeInfo{info(t, midID)}
	n.peers[midID] = []types.NodeInfo{info(t, closeID)}
	n.peers[closeID] = nil

	res := Run(context.Background(), target, FindNode, []types.NodeInfo{info(t, seedID)}, 20, 3, n.rpc, nil)

	ids := make([]types.ID, len(res.Closest))
	for i, c := range res.Closest {
		ids[i] = c.ID
	}
	assert.Contains(t, ids, seedID)
	assert.Contains(t, ids, midID)
	assert.Contains(t, ids, closeID)
}

func TestLookup_SkipsFailedPeers(t *testing.T) {
	target, err := types.RandomID()
	require.NoError(t, err)

	good, err := types.RandomID()
	require.NoError(t, err)
	bad, err := types.RandomID()
	require.NoError(t, err)

	n := newFakeNetwork()
	n.unreach[bad] = true

	res := Run(context.Background(), target, FindNode, []types.NodeInfo{info(t, good), info(t, bad)}, 20, 3, n.rpc, nil)

	ids := make([]types.ID, len(res.Closest))
	for i, c := range res.Closest {
		ids[i] = c.ID
	}
	assert.Contains(t, ids, good)
	assert.NotContains(t, ids, bad)
}

func TestLookup_FindValue_StopsAtHolder(t *testing.T) {
	target, err := types.RandomID()
	require.NoError(t, err)
	holderID, err := types.RandomID()
	require.NoError(t, err)

	n := newFakeNetwork()
	n.holders[holderID] = []types.Record{{Key: target, Value: []byte("hello")}}

	res := Run(context.Background(), target, FindValue, []types.NodeInfo{info(t, holderID)}, 20, 3, n.rpc, nil)

	require.Len(t, res.Values, 1)
	assert.Equal(t, []byte("hello"), res.Values[0].Value)
}

func TestLookup_FindValue_ReturnsEveryRecordFromHolder(t *testing.T) {
	target, err := types.RandomID()
	require.NoError(t, err)
	holderID, err := types.RandomID()
	require.NoError(t, err)

	n := newFakeNetwork()
	n.holders[holderID] = []types.Record{
		{Key: target, Publisher: holderID, Value: []byte("from-a")},
		{Key: target, Publisher: target, Value: []byte("from-b")},
	}

	res := Run(context.Background(), target, FindValue, []types.NodeInfo{info(t, holderID)}, 20, 3, n.rpc, nil)

	require.Len(t, res.Values, 2)
	assert.Equal(t, []byte("from-a"), res.Values[0].Value)
	assert.Equal(t, []byte("from-b"), res.Values[1].Value)
}

func TestLookup_FindValue_CacheOnPath(t *testing.T) {
	target, err := types.RandomID()
	require.NoError(t, err)
	holderID, err := types.RandomID()
	require.NoError(t, err)
	closerID, err := types.RandomID()
	require.NoError(t, err)

	n := newFakeNetwork()
	n.holders[holderID] = []types.Record{{Key: target, Value: []byte("v")}}
	n.peers[holderID] = []types.NodeInfo{info(t, closerID)}

	var stored []types.NodeInfo
	storeFn := func(peer types.NodeInfo, rec types.Record) { stored = append(stored, peer) }

	res := Run(context.Background(), target, FindValue, []types.NodeInfo{info(t, holderID)}, 20, 3, n.rpc, storeFn)
	require.Len(t, res.Values, 1)
	// holderID replied first and is the only contacted peer at the
	// moment the value is found, so it is also the closest discovered
	// and cache-on-path must not fire against itself.
	for _, s := range stored {
		assert.NotEqual(t, holderID, s.ID)
	}
}

func TestLookup_EmptySeedsConvergesImmediately(t *testing.T) {
	target, err := types.RandomID()
	require.NoError(t, err)
	n := newFakeNetwork()

	res := Run(context.Background(), target, FindNode, nil, 20, 3, n.rpc, nil)
	assert.Empty(t, res.Closest)
}
