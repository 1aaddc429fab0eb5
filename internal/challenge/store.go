// Package challenge holds the ephemeral enrollment nonces. A nonce is issued
// by enroll.start, consumed by exactly one successful enroll.finish, and
// discarded on expiry. Nothing here survives beyond its TTL.
package challenge

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Challenge is one outstanding enrollment nonce, keyed by device id.
type Challenge struct {
	Nonce     string    `json:"nonce"` // base64, opaque to the store
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Store is the keyed expiring store behind enrollment. Implementations must
// be safe for concurrent use. Get never returns an expired challenge; expiry
// is checked lazily on read, so backends without native TTL must sweep.
type Store interface {
	// Put stores the challenge for the device, replacing any previous one.
	Put(ctx context.Context, deviceID uuid.UUID, ch Challenge) error

	// Get returns the challenge for the device, or nil if absent or expired.
	Get(ctx context.Context, deviceID uuid.UUID) (*Challenge, error)

	// Remove deletes the challenge. Removing an absent key is a no-op.
	Remove(ctx context.Context, deviceID uuid.UUID) error
}
