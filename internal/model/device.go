package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Platforms a device may enroll as.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
	PlatformDesktop = "desktop"
	PlatformUnknown = "unknown"
)

// IsValidPlatform reports whether p is one of the enrollable platforms.
func IsValidPlatform(p string) bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb, PlatformDesktop:
		return true
	}
	return false
}

// Device is an enrolled (or enrolling) end-user device. The identity key and
// key-exchange key are stored as base64 SPKI strings exactly as uploaded; the
// server never holds any private key material for a device.
//
// A device is either unrevoked or permanently revoked. There is no
// re-activation path; a revoked device stops receiving fan-out.
type Device struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	DeviceName  *string   `db:"device_name" json:"device_name"`
	Platform    string    `db:"platform" json:"platform"`
	IdentityKey *string   `db:"public_identity_key" json:"identity_key"`
	KxKey       *string   `db:"public_kx_key" json:"kx_key"`
	KeyCurve    *string   `db:"key_curve" json:"key_curve"`
	BindingSig  []byte    `db:"identity_binding_sig" json:"-"`

	// Optional opaque post-quantum KEM public key, stored if the client
	// uploads one. No PQ crypto happens server-side.
	PqKemKey []byte `db:"pqkem_public_key" json:"-"`

	// Server-issued device certificate (optional, see certificate.Issuer).
	CertPayload   *string    `db:"cert_payload" json:"-"`
	CertSignature []byte     `db:"cert_signature" json:"-"`
	CertKeyID     *string    `db:"cert_key_id" json:"-"`
	CertIssuedAt  *time.Time `db:"cert_issued_at" json:"-"`
	CertExpiresAt *time.Time `db:"cert_expires_at" json:"-"`

	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// IsActive reports whether the device is eligible for fan-out and bundles.
func (d *Device) IsActive() bool {
	return d.RevokedAt == nil
}

// IsEnrolled reports whether enrollment finished for this device.
func (d *Device) IsEnrolled() bool {
	return d.IdentityKey != nil
}

// DeviceSummary is the public listing shape for a user's linked devices.
type DeviceSummary struct {
	DeviceID   uuid.UUID  `db:"id" json:"device_id"`
	DeviceName *string    `db:"device_name" json:"device_name"`
	Platform   string     `db:"platform" json:"platform"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"last_seen_at"`
	Revoked    bool       `db:"revoked" json:"revoked"`
}

// DeviceCertificate is a server signature over a device's public key material,
// handed to peers in the prekey bundle so they can pin the binding without
// trusting the transport.
type DeviceCertificate struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	KeyID     string `json:"kid"`
}

var (
	// ErrDeviceNotFound is returned when a device id cannot be resolved
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNotDeviceOwner is returned when revocation is attempted by a user
	// that does not own the device
	ErrNotDeviceOwner = errors.New("device not owned by caller")

	// ErrDeviceNotEnrolled is returned when key material is requested for a
	// device whose enrollment never finished
	ErrDeviceNotEnrolled = errors.New("device not enrolled")

	// ErrInvalidPlatform is returned for a platform outside the known set
	ErrInvalidPlatform = errors.New("invalid platform")
)

// Enrollment proof failures. Verification runs before any key material is
// persisted; none of these leave partial state behind.
var (
	ErrChallengeMissing       = errors.New("enrollment challenge not found")
	ErrChallengeExpired       = errors.New("enrollment challenge expired")
	ErrInvalidKeyEncoding     = errors.New("invalid public key encoding")
	ErrInvalidBindingSig      = errors.New("invalid binding signature")
	ErrInvalidPossessionProof = errors.New("invalid possession proof")
)
