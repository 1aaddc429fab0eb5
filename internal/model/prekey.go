package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PrekeyKind distinguishes the two prekey records a device maintains.
type PrekeyKind string

const (
	// PrekeySigned is the medium-lived signed prekey. Exactly one per device
	// is current; a new upload replaces the old one.
	PrekeySigned PrekeyKind = "signed_prekey"

	// PrekeyOneTime is a single-use prekey, claimed by at most one bundle.
	PrekeyOneTime PrekeyKind = "one_time_prekey"
)

// Prekey is one row of a device's published key-exchange material.
// KeyID is the client-assigned, device-scoped identifier the peer echoes
// back during session setup.
type Prekey struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DeviceID   uuid.UUID  `db:"device_id" json:"device_id"`
	Kind       PrekeyKind `db:"kind" json:"kind"`
	KeyID      int        `db:"key_id" json:"key_id"`
	PublicKey  string     `db:"public_key" json:"public_key"`
	Signature  []byte     `db:"signature" json:"-"`                       // signed kind only
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"` // signed kind only
	Used       bool       `db:"is_used" json:"-"`                         // one-time kind only
	ClaimedAt  *time.Time `db:"claimed_at" json:"-"`                      // one-time kind only
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// OneTimePrekeyUpload is one item of an opk.upload batch.
type OneTimePrekeyUpload struct {
	KeyID     int    `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

// BundleSignedPrekey is the signed-prekey section of a session-start bundle.
type BundleSignedPrekey struct {
	KeyID     int    `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// BundleOneTimePrekey is the claimed one-time prekey, absent when the pool
// ran dry at claim time.
type BundleOneTimePrekey struct {
	KeyID     int    `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

// PrekeyBundle is everything a peer needs to start a session with a device
// asynchronously. It never contains anything derived from a private key.
type PrekeyBundle struct {
	IdentityKey   string               `json:"identityKey"`
	KeyCurve      string               `json:"curve"`
	SignedPrekey  BundleSignedPrekey   `json:"spk"`
	OneTimePrekey *BundleOneTimePrekey `json:"opk,omitempty"`
	PqKemKey      *string              `json:"pqKey,omitempty"`
	Certificate   *DeviceCertificate   `json:"certificate,omitempty"`
}

var (
	// ErrNoSignedPrekey is returned when a bundle is requested for a device
	// that never uploaded a signed prekey
	ErrNoSignedPrekey = errors.New("no signed prekey available")

	// ErrInvalidPrekey is returned for a prekey upload with missing fields
	ErrInvalidPrekey = errors.New("invalid prekey")
)
