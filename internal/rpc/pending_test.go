package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTable_ResolveDeliversFrame(t *testing.T) {
	pt := NewPendingTable()
	id := pt.NextID()

	go func() {
		ok := pt.Resolve(id, Frame{ID: id, Kind: KindResponse})
		assert.True(t, ok)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := pt.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, f.ID)
}

func TestPendingTable_UnmatchedResolveReportsFalse(t *testing.T) {
	pt := NewPendingTable()
	assert.False(t, pt.Resolve(999, Frame{}))
}

func TestPendingTable_TimeoutWithoutResolve(t *testing.T) {
	pt := NewPendingTable()
	id := pt.NextID()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := pt.Wait(ctx, id)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPendingTable_CloseAllFailsWaiters(t *testing.T) {
	pt := NewPendingTable()
	id := pt.NextID()

	done := make(chan error, 1)
	go func() {
		_, err := pt.Wait(context.Background(), id)
		done <- err
	}()

	// give the waiter a moment to register before closing.
	time.Sleep(10 * time.Millisecond)
	pt.CloseAll()

	err := <-done
	assert.ErrorIs(t, err, ErrClosed)

	_, err = pt.Wait(context.Background(), pt.NextID())
	assert.ErrorIs(t, err, ErrClosed)
}
