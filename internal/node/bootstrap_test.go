package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkSizeEstimate(t *testing.T) {
	cases := []struct {
		size int
		want int
	}{
		{0, 0},
		{-5, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{255, 8},
		{256, 9},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, networkSizeEstimate(tc.size), "size=%d", tc.size)
	}
}
