package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromHex_RoundTrip(t *testing.T) {
	raw := make([]byte, IDLen)
	for i := range raw {
		raw[i] = byte(i)
	}
	id, err := IDFromBytes(raw)
	require.NoError(t, err)

	hexStr := id.String()
	assert.Len(t, hexStr, IDLen*2)

	back, err := IDFromHex(hexStr)
	require.NoError(t, err)
	assert.Equal(t, id, back)
}

func TestIDFromHex_WrongLength(t *testing.T) {
	_, err := IDFromHex("deadbeef")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestXOR_SameID(t *testing.T) {
	id, err := RandomID()
	require.NoError(t, err)
	assert.Equal(t, ZeroID, id.XOR(id))
}

func TestXOR_Commutative(t *testing.T) {
	a, _ := RandomID()
	b, _ := RandomID()
	assert.Equal(t, a.XOR(b), b.XOR(a))
}

func TestCompareDistance_Self(t *testing.T) {
	a, _ := RandomID()
	b, _ := RandomID()
	assert.Equal(t, 0, CompareDistance(a, a, b))
}

func TestCompareDistance_Ordering(t *testing.T) {
	var target, near, far ID
	target[0] = 0x00
	near[0] = 0x01  // distance 0x01 from target
	far[0] = 0x80   // distance 0x80 from target

	assert.Equal(t, -1, CompareDistance(near, far, target))
	assert.Equal(t, 1, CompareDistance(far, near, target))
}

func TestCommonPrefixLen_Identical(t *testing.T) {
	a, _ := RandomID()
	assert.Equal(t, IDLen*8, CommonPrefixLen(a, a))
}

func TestCommonPrefixLen_FirstBitDiffers(t *testing.T) {
	var a, b ID
	a[0] = 0x00
	b[0] = 0x80 // differs in the top bit
	assert.Equal(t, 0, CommonPrefixLen(a, b))
}

func TestBucketIndex_Range(t *testing.T) {
	local, _ := RandomID()
	other, _ := RandomID()
	idx := BucketIndex(local, other)
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, IDLen*8)
}

func TestTopicID_Deterministic(t *testing.T) {
	a := TopicID("wdht/v1", "chat-room-1")
	b := TopicID("wdht/v1", "chat-room-1")
	assert.Equal(t, a, b)
}

func TestTopicID_NamespaceSeparation(t *testing.T) {
	a := TopicID("ns1", "x")
	b := TopicID("ns2", "x")
	assert.NotEqual(t, a, b)
}
