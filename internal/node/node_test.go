package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SnowyCoder/wdht/internal/transport/nativetransport"
	"github.com/SnowyCoder/wdht/pkg/types"
)

func startNode(t *testing.T, opts ...Option) (*KademliaNode, *nativetransport.Transport) {
	t.Helper()
	id, err := types.RandomID()
	require.NoError(t, err)
	tr, err := nativetransport.Listen(id, "127.0.0.1:0")
	require.NoError(t, err)

	n, err := New(fixedIdentity{id}, tr, nil, opts...)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))

	t.Cleanup(func() { n.Close() })
	return n, tr
}

type fixedIdentity struct{ id types.ID }

func (f fixedIdentity) GenerateID() (types.ID, error) { return f.id, nil }

func seedOf(tr *nativetransport.Transport, id types.ID) types.NodeInfo {
	return types.NodeInfo{ID: id, Contact: tr.LocalContact()}
}

func TestNode_BootstrapAndInsertQuery(t *testing.T) {
	a, aTr := startNode(t)
	b, bTr := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, b.Bootstrap(ctx, []types.NodeInfo{seedOf(aTr, a.LocalID())}))
	assert.Equal(t, 1, b.rt.Size())
	_ = bTr

	key, err := types.RandomID()
	require.NoError(t, err)

	acked, err := b.Insert(ctx, key, []byte("hello"), time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acked, 1)

	recs, err := a.Query(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []byte("hello"), recs[0].Value)

	require.NoError(t, b.Remove(ctx, key))

	local, err := b.Query(ctx, key, 10)
	require.NoError(t, err)
	assert.Empty(t, local)
}

func TestNode_BootstrapAllSeedsFailed(t *testing.T) {
	b, _ := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unreachable, err := types.RandomID()
	require.NoError(t, err)
	seed := types.NodeInfo{ID: unreachable, Contact: types.Contact{Kind: types.ContactNative, Addr: "127.0.0.1:1"}}

	err = b.Bootstrap(ctx, []types.NodeInfo{seed})
	assert.ErrorIs(t, err, ErrAllSeedsFailed)
}

func TestNode_QueryNoPeersReturnsEmptyNotError(t *testing.T) {
	a, _ := startNode(t)

	key, err := types.RandomID()
	require.NoError(t, err)

	recs, err := a.Query(context.Background(), key, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNode_InsertNoPeersFails(t *testing.T) {
	a, _ := startNode(t)

	key, err := types.RandomID()
	require.NoError(t, err)

	_, err = a.Insert(context.Background(), key, []byte("x"), time.Hour)
	assert.ErrorIs(t, err, ErrNoPeers)
}

func TestNode_ConnectToReturnsHeldChannel(t *testing.T) {
	a, aTr := startNode(t)
	b, bTr := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Bootstrap(ctx, []types.NodeInfo{seedOf(aTr, a.LocalID())}))
	_ = bTr

	ch, err := b.ConnectTo(ctx, a.LocalID())
	require.NoError(t, err)
	assert.NotNil(t, ch)

	again, err := b.ConnectTo(ctx, a.LocalID())
	require.NoError(t, err)
	assert.Same(t, ch, again)
}

func TestNode_StatsReflectsState(t *testing.T) {
	a, aTr := startNode(t)
	b, bTr := startNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Bootstrap(ctx, []types.NodeInfo{seedOf(aTr, a.LocalID())}))
	_ = bTr

	st := b.Stats()
	assert.Equal(t, 1, st.PeerCount)
	assert.Len(t, st.BucketSizes, 160)
}
