package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SnowyCoder/wdht/internal/kademlia"
	"github.com/SnowyCoder/wdht/pkg/types"
)

// fakeChannel is a no-op transport.Channel, enough to exercise peerTable's
// bookkeeping without opening a real socket.
type fakeChannel struct {
	closed bool
}

func (f *fakeChannel) Send(ctx context.Context, p []byte) error { return nil }
func (f *fakeChannel) Recv(ctx context.Context) ([]byte, error) { <-ctx.Done(); return nil, ctx.Err() }
func (f *fakeChannel) RemoteID() (types.ID, bool)                { return types.ID{}, false }
func (f *fakeChannel) Kind() types.ContactKind                   { return types.ContactNative }
func (f *fakeChannel) Close() error                               { f.closed = true; return nil }

func connFor(t *testing.T) (*conn, types.ID) {
	t.Helper()
	id, err := types.RandomID()
	require.NoError(t, err)
	info := types.NodeInfo{ID: id, Contact: types.Contact{Kind: types.ContactNative, Addr: "127.0.0.1:0"}}
	return newConn(info, &fakeChannel{}), id
}

func TestPeerTable_GetPutRoundTrip(t *testing.T) {
	rt := kademlia.NewRoutingTable(types.ID{}, kademlia.DefaultConfig(), nil)
	pt := newPeerTable(4, rt)

	c, id := connFor(t)
	assert.Nil(t, pt.put(c))

	got, ok := pt.get(id)
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, pt.len())
}

func TestPeerTable_PutReplacesAndReturnsDisplaced(t *testing.T) {
	rt := kademlia.NewRoutingTable(types.ID{}, kademlia.DefaultConfig(), nil)
	pt := newPeerTable(4, rt)

	id, err := types.RandomID()
	require.NoError(t, err)
	info := types.NodeInfo{ID: id}

	first := newConn(info, &fakeChannel{})
	second := newConn(info, &fakeChannel{})

	assert.Nil(t, pt.put(first))
	displaced := pt.put(second)
	require.NotNil(t, displaced)
	assert.Same(t, first, displaced)

	got, ok := pt.get(id)
	require.True(t, ok)
	assert.Same(t, second, got)
}

// TestPeerTable_EvictOverCapProtectsRoutingTableMembers verifies spec.md
// §5's soft cap: a peer that is also a routing-table member survives
// eviction even when over cap, while a non-member is dropped first.
func TestPeerTable_EvictOverCapProtectsRoutingTableMembers(t *testing.T) {
	local := types.ID{}
	rt := kademlia.NewRoutingTable(local, kademlia.DefaultConfig(), nil)
	pt := newPeerTable(1, rt)

	protectedConn, protectedID := connFor(t)
	rt.Insert(context.Background(), protectedConn.peer, func(context.Context, types.NodeInfo) bool { return true })
	_ = protectedID

	unprotectedConn, _ := connFor(t)

	pt.put(protectedConn)
	pt.put(unprotectedConn)

	assert.Equal(t, 1, pt.len())
	_, stillThere := pt.get(protectedConn.peer.ID)
	assert.True(t, stillThere, "routing-table member must not be evicted")
	_, gone := pt.get(unprotectedConn.peer.ID)
	assert.False(t, gone, "non-member over cap should have been evicted")
}

func TestPeerTable_ByChannel(t *testing.T) {
	rt := kademlia.NewRoutingTable(types.ID{}, kademlia.DefaultConfig(), nil)
	pt := newPeerTable(4, rt)

	c, _ := connFor(t)
	pt.put(c)

	found, ok := pt.byChannel(c.channel)
	require.True(t, ok)
	assert.Same(t, c, found)

	_, ok = pt.byChannel(&fakeChannel{})
	assert.False(t, ok)
}

func TestPeerTable_RemoveAndAll(t *testing.T) {
	rt := kademlia.NewRoutingTable(types.ID{}, kademlia.DefaultConfig(), nil)
	pt := newPeerTable(4, rt)

	c1, _ := connFor(t)
	c2, _ := connFor(t)
	pt.put(c1)
	pt.put(c2)
	assert.Len(t, pt.all(), 2)

	pt.remove(c1.peer.ID)
	assert.Len(t, pt.all(), 1)
	_, ok := pt.get(c1.peer.ID)
	assert.False(t, ok)
}
