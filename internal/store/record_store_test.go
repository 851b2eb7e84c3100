package store

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SnowyCoder/wdht/pkg/types"
)

func mkRecord(t *testing.T, now time.Time, ttl time.Duration) types.Record {
	t.Helper()
	key, err := types.RandomID()
	require.NoError(t, err)
	pub, err := types.RandomID()
	require.NoError(t, err)
	return types.Record{Key: key, Publisher: pub, Value: []byte("v"), InsertedAt: now, TTL: ttl}
}

func TestRecordStore_PutGet(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	rec := mkRecord(t, clk.Now(), time.Minute)
	replaced, err := s.Put(rec)
	require.NoError(t, err)
	assert.False(t, replaced)

	got := s.Get(rec.Key)
	require.Len(t, got, 1)
	assert.Equal(t, rec.Value, got[0].Value)
}

func TestRecordStore_PutOverwritesSamePublisher(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	rec := mkRecord(t, clk.Now(), time.Minute)
	s.Put(rec)

	updated := rec
	updated.Value = []byte("new")
	replaced, err := s.Put(updated)
	require.NoError(t, err)
	assert.True(t, replaced)

	got := s.Get(rec.Key)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("new"), got[0].Value)
}

func TestRecordStore_MultiplePublishersSameKey(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	key, err := types.RandomID()
	require.NoError(t, err)
	pub1, err := types.RandomID()
	require.NoError(t, err)
	pub2, err := types.RandomID()
	require.NoError(t, err)

	s.Put(types.Record{Key: key, Publisher: pub1, Value: []byte("a"), InsertedAt: clk.Now(), TTL: time.Minute})
	s.Put(types.Record{Key: key, Publisher: pub2, Value: []byte("b"), InsertedAt: clk.Now(), TTL: time.Minute})

	got := s.Get(key)
	assert.Len(t, got, 2)
}

func TestRecordStore_RejectsOversizedValue(t *testing.T) {
	s := New(clock.NewMock())
	rec := mkRecord(t, time.Now(), time.Minute)
	rec.Value = make([]byte, types.MaxRecordValueSize+1)

	_, err := s.Put(rec)
	assert.ErrorIs(t, err, types.ErrValueTooLarge)
}

func TestRecordStore_GetPrunesExpired(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	rec := mkRecord(t, clk.Now(), time.Minute)
	s.Put(rec)

	clk.Add(2 * time.Minute)
	got := s.Get(rec.Key)
	assert.Empty(t, got)
	assert.Equal(t, 0, s.Len())
}

func TestRecordStore_GCSweepsAcrossKeys(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	live := mkRecord(t, clk.Now(), time.Hour)
	dead := mkRecord(t, clk.Now(), time.Second)
	s.Put(live)
	s.Put(dead)

	clk.Add(time.Minute)
	removed := s.GC(clk.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}

func TestRecordStore_DeleteRemovesSinglePublisher(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	rec := mkRecord(t, clk.Now(), time.Minute)
	s.Put(rec)

	assert.True(t, s.Delete(rec.Key, rec.Publisher))
	assert.Empty(t, s.Get(rec.Key))
	assert.False(t, s.Delete(rec.Key, rec.Publisher))
}

func TestRecordStore_OwnedKeys(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	pub, err := types.RandomID()
	require.NoError(t, err)
	key, err := types.RandomID()
	require.NoError(t, err)
	s.Put(types.Record{Key: key, Publisher: pub, Value: []byte("v"), InsertedAt: clk.Now(), TTL: time.Hour})

	other, err := types.RandomID()
	require.NoError(t, err)
	owned := s.OwnedKeys(pub)
	assert.Contains(t, owned, key)
	assert.NotContains(t, owned, other)
}
