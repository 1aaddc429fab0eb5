// Package certificate issues the optional server-signed device certificate
// returned alongside raw key storage. A deployment that only wants raw keys
// wires a nil Issuer and nothing else changes.
package certificate

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/model"
)

// DefaultValidity is the certificate lifetime.
const DefaultValidity = 365 * 24 * time.Hour

// Payload is the signed JSON body. Peers verify the signature against the
// published root key identified by the certificate's kid.
type Payload struct {
	DeviceID    uuid.UUID `json:"device_id"`
	IdentityKey string    `json:"identity_key"`
	Curve       string    `json:"curve"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Issuer signs device key material at enrollment time.
type Issuer interface {
	Issue(deviceID uuid.UUID, identityKey, curve string, now time.Time) (*model.DeviceCertificate, *Payload, error)
}

// Ed25519Issuer signs certificate payloads with a server root key.
type Ed25519Issuer struct {
	key      ed25519.PrivateKey
	keyID    string
	validity time.Duration
}

// NewEd25519Issuer derives the root key from a base64-encoded 32-byte seed.
func NewEd25519Issuer(seedB64, keyID string) (*Ed25519Issuer, error) {
	seed, err := base64.StdEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, fmt.Errorf("decode signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Issuer{
		key:      ed25519.NewKeyFromSeed(seed),
		keyID:    keyID,
		validity: DefaultValidity,
	}, nil
}

// PublicKey returns the root verification key, for distribution to clients.
func (i *Ed25519Issuer) PublicKey() ed25519.PublicKey {
	return i.key.Public().(ed25519.PublicKey)
}

func (i *Ed25519Issuer) Issue(deviceID uuid.UUID, identityKey, curve string, now time.Time) (*model.DeviceCertificate, *Payload, error) {
	payload := Payload{
		DeviceID:    deviceID,
		IdentityKey: identityKey,
		Curve:       curve,
		IssuedAt:    now.UTC(),
		ExpiresAt:   now.UTC().Add(i.validity),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal certificate payload: %w", err)
	}
	sig := ed25519.Sign(i.key, body)
	cert := &model.DeviceCertificate{
		Payload:   string(body),
		Signature: base64.StdEncoding.EncodeToString(sig),
		KeyID:     i.keyID,
	}
	return cert, &payload, nil
}
