package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionID_Unique(t *testing.T) {
	a := newSessionID()
	b := newSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestDefaultIdentityProvider_GeneratesDistinctIDs(t *testing.T) {
	p := DefaultIdentityProvider()
	a, err := p.GenerateID()
	assert.NoError(t, err)
	b, err := p.GenerateID()
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}
