package node

import (
	"github.com/google/uuid"

	"github.com/SnowyCoder/wdht/pkg/types"
)

// IdentityProvider generates a node's identifier. spec.md §1 treats the
// cryptographic primitive library as an external black box; this seam
// lets a caller plug in a real identity/keypair scheme without
// KademliaNode depending on one concrete choice.
type IdentityProvider interface {
	GenerateID() (types.ID, error)
}

// randomIdentityProvider is the default: a cryptographically random
// 160-bit identifier, the same generation spec.md's RandomID describes
// for bucket-refresh targets.
type randomIdentityProvider struct{}

func (randomIdentityProvider) GenerateID() (types.ID, error) {
	return types.RandomID()
}

// DefaultIdentityProvider returns the random-identity seam used when the
// caller has no external identity scheme to plug in.
func DefaultIdentityProvider() IdentityProvider { return randomIdentityProvider{} }

// newSessionID allocates an opaque correlation id for one signaling
// handshake attempt. Uses google/uuid, mirroring
// internal/protocol/messaging/service.go's uuid.New().String() session
// ids — purely for log correlation, never parsed by a peer.
func newSessionID() string {
	return uuid.NewString()
}
