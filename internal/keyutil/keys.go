// Package keyutil generates client-side key material: Ed25519 identity keys
// and X25519 key-exchange keys in the base64 SPKI form the enrollment API
// expects. The server itself never creates device keys; this exists for test
// fixtures and for the enrollment proofs they have to sign.
package keyutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// IdentityKeyPair is a device's Ed25519 signing pair.
type IdentityKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// NewIdentityKeyPair generates a fresh Ed25519 pair.
func NewIdentityKeyPair() (*IdentityKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	return &IdentityKeyPair{Public: pub, Private: priv}, nil
}

// PublicSPKI returns the identity public key as DER SPKI bytes.
func (k *IdentityKeyPair) PublicSPKI() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.Public)
	if err != nil {
		return nil, fmt.Errorf("marshal identity key: %w", err)
	}
	return der, nil
}

// NewKxPublicKey generates an X25519 scalar and returns the corresponding
// public point. Only the public half leaves the caller.
func NewKxPublicKey() ([]byte, error) {
	var scalar [curve25519.ScalarSize]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		return nil, fmt.Errorf("generate kx scalar: %w", err)
	}
	pub, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive kx public key: %w", err)
	}
	return pub, nil
}

// BindingMessage is the hash the binding signature covers:
// SHA-256("bind:" || kxKey).
func BindingMessage(kxKey []byte) []byte {
	h := sha256.New()
	h.Write([]byte("bind:"))
	h.Write(kxKey)
	return h.Sum(nil)
}

// EnrollMessage is the hash the possession proof covers:
// SHA-256("enroll:" || deviceId || nonce || identityKey || kxKey).
// Binding the proof to the device id and nonce prevents replaying it against
// another device or a later challenge.
func EnrollMessage(deviceID, nonce string, identityKey, kxKey []byte) []byte {
	h := sha256.New()
	h.Write([]byte("enroll:"))
	h.Write([]byte(deviceID))
	h.Write([]byte(nonce))
	h.Write(identityKey)
	h.Write(kxKey)
	return h.Sum(nil)
}

// B64 is shorthand for standard base64 encoding.
func B64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
