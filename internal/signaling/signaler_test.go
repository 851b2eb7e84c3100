package signaling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SnowyCoder/wdht/internal/transport"
	"github.com/SnowyCoder/wdht/pkg/types"
)

type fakePending struct {
	opened chan struct{}
	answer []byte
	failed bool
}

func newFakePending() *fakePending { return &fakePending{opened: make(chan struct{}, 1)} }

func (p *fakePending) SetAnswer(answer []byte) error {
	if p.failed {
		return assert.AnError
	}
	p.answer = answer
	p.opened <- struct{}{}
	return nil
}

func (p *fakePending) AddICECandidate(fragment []byte) error { return nil }

func (p *fakePending) Await(ctx context.Context) (transport.Channel, error) {
	select {
	case <-p.opened:
		return &fakeChannel{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeChannel struct{}

func (c *fakeChannel) Send(ctx context.Context, p []byte) error      { return nil }
func (c *fakeChannel) Recv(ctx context.Context) ([]byte, error)      { return nil, nil }
func (c *fakeChannel) RemoteID() (types.ID, bool)                    { return types.ID{}, false }
func (c *fakeChannel) Kind() types.ContactKind                       { return types.ContactBrowser }
func (c *fakeChannel) Close() error                                  { return nil }

type fakeOfferAnswerer struct {
	lastPending *fakePending
}

func (f *fakeOfferAnswerer) CreateOffer(ctx context.Context, remote types.ID) ([]byte, PendingConn, error) {
	f.lastPending = newFakePending()
	return []byte("offer"), f.lastPending, nil
}

func (f *fakeOfferAnswerer) AcceptOffer(ctx context.Context, remote types.ID, offer []byte) ([]byte, PendingConn, error) {
	p := newFakePending()
	p.opened <- struct{}{}
	return []byte("answer"), p, nil
}

type fakeLookup struct {
	channels map[types.ID]transport.Channel
}

func (f *fakeLookup) ChannelTo(id types.ID) (transport.Channel, bool) {
	ch, ok := f.channels[id]
	return ch, ok
}

func TestSignaler_Connect_FirstRelayWins(t *testing.T) {
	local, err := types.RandomID()
	require.NoError(t, err)
	target, err := types.RandomID()
	require.NoError(t, err)

	oa := &fakeOfferAnswerer{}
	connectCalls := 0
	connectFn := func(ctx context.Context, ch transport.Channel, tgt types.ID, offer []byte) ([]byte, error) {
		connectCalls++
		return []byte("answer-from-relay"), nil
	}
	s := New(local, oa, &fakeLookup{}, connectFn, nil, nil)

	ch, err := s.Connect(context.Background(), target, []transport.Channel{&fakeChannel{}})
	require.NoError(t, err)
	assert.NotNil(t, ch)
	assert.Equal(t, 1, connectCalls)
}

func TestSignaler_Connect_NoRelaysIsError(t *testing.T) {
	local, err := types.RandomID()
	require.NoError(t, err)
	target, err := types.RandomID()
	require.NoError(t, err)

	s := New(local, &fakeOfferAnswerer{}, &fakeLookup{}, nil, nil, nil)
	_, err = s.Connect(context.Background(), target, nil)
	assert.ErrorIs(t, err, ErrNoRelay)
}

func TestSignaler_Connect_AllRelaysFail(t *testing.T) {
	local, err := types.RandomID()
	require.NoError(t, err)
	target, err := types.RandomID()
	require.NoError(t, err)

	connectFn := func(ctx context.Context, ch transport.Channel, tgt types.ID, offer []byte) ([]byte, error) {
		return nil, ErrRelayDenied
	}
	s := New(local, &fakeOfferAnswerer{}, &fakeLookup{}, connectFn, nil, nil)

	_, err = s.Connect(context.Background(), target, []transport.Channel{&fakeChannel{}, &fakeChannel{}})
	assert.ErrorIs(t, err, ErrRelayDenied)
}

func TestSignaler_HandleConnect_AsDestination(t *testing.T) {
	local, err := types.RandomID()
	require.NoError(t, err)
	from, err := types.RandomID()
	require.NoError(t, err)

	s := New(local, &fakeOfferAnswerer{}, &fakeLookup{}, nil, nil, nil)
	answer, err := s.HandleConnect(context.Background(), from, local, []byte("offer"))
	require.NoError(t, err)
	assert.Equal(t, []byte("answer"), answer)
}

func TestSignaler_HandleConnect_AsRelay(t *testing.T) {
	local, err := types.RandomID()
	require.NoError(t, err)
	from, err := types.RandomID()
	require.NoError(t, err)
	target, err := types.RandomID()
	require.NoError(t, err)

	lookup := &fakeLookup{channels: map[types.ID]transport.Channel{target: &fakeChannel{}}}
	connectFn := func(ctx context.Context, ch transport.Channel, tgt types.ID, offer []byte) ([]byte, error) {
		return []byte("forwarded-answer"), nil
	}
	s := New(local, &fakeOfferAnswerer{}, lookup, connectFn, nil, nil)

	answer, err := s.HandleConnect(context.Background(), from, target, []byte("offer"))
	require.NoError(t, err)
	assert.Equal(t, []byte("forwarded-answer"), answer)
}

func TestSignaler_HandleConnect_NoChannelToTargetDenied(t *testing.T) {
	local, err := types.RandomID()
	require.NoError(t, err)
	from, err := types.RandomID()
	require.NoError(t, err)
	target, err := types.RandomID()
	require.NoError(t, err)

	s := New(local, &fakeOfferAnswerer{}, &fakeLookup{}, nil, nil, nil)
	_, err = s.HandleConnect(context.Background(), from, target, []byte("offer"))
	assert.ErrorIs(t, err, ErrRelayDenied)
}

func TestSignaler_HandleICE_ForwardsOneHop(t *testing.T) {
	local, err := types.RandomID()
	require.NoError(t, err)
	from, err := types.RandomID()
	require.NoError(t, err)
	target, err := types.RandomID()
	require.NoError(t, err)

	lookup := &fakeLookup{channels: map[types.ID]transport.Channel{target: &fakeChannel{}}}
	iceCalls := 0
	iceFn := func(ctx context.Context, ch transport.Channel, tgt types.ID, fragment []byte) error {
		iceCalls++
		return nil
	}
	s := New(local, &fakeOfferAnswerer{}, lookup, nil, iceFn, nil)

	require.NoError(t, s.HandleICE(context.Background(), from, target, []byte("frag")))
	assert.Equal(t, 1, iceCalls)
}
