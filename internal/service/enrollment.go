package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/certificate"
	"github.com/Manz2/chat-e2e/internal/challenge"
	"github.com/Manz2/chat-e2e/internal/keyutil"
	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/repository"
)

// KeyCurveX25519 is the key-exchange scheme tag recorded at enrollment and
// echoed in bundles.
const KeyCurveX25519 = "x25519"

// EnrollmentService runs the nonce-challenge protocol that binds a device's
// signing key and key-exchange key to its record. All verification happens
// before anything is persisted; a failed finish leaves no key material
// behind and the challenge intact until its TTL.
type EnrollmentService struct {
	userRepo   repository.UserRepository
	deviceRepo repository.DeviceRepository
	challenges challenge.Store
	issuer     certificate.Issuer // nil disables certificate issuance
	nonceTTL   time.Duration
}

func NewEnrollmentService(userRepo repository.UserRepository, deviceRepo repository.DeviceRepository, challenges challenge.Store, issuer certificate.Issuer, nonceTTL time.Duration) *EnrollmentService {
	return &EnrollmentService{
		userRepo:   userRepo,
		deviceRepo: deviceRepo,
		challenges: challenges,
		issuer:     issuer,
		nonceTTL:   nonceTTL,
	}
}

// Start resolves the user, creates a device scaffold and issues the
// single-use nonce the device must sign over in Finish.
func (s *EnrollmentService) Start(ctx context.Context, userHandle string) (*model.EnrollmentStartResponse, error) {
	user, err := s.userRepo.GetByHandle(ctx, userHandle)
	if err != nil {
		return nil, err
	}

	device, err := s.deviceRepo.CreateScaffold(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("create device scaffold: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	nonce := base64.StdEncoding.EncodeToString(raw)
	expiresAt := time.Now().Add(s.nonceTTL)

	if err := s.challenges.Put(ctx, device.ID, challenge.Challenge{Nonce: nonce, ExpiresAt: expiresAt}); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	return &model.EnrollmentStartResponse{
		DeviceID:  device.ID,
		Nonce:     nonce,
		ExpiresAt: expiresAt,
	}, nil
}

// Finish verifies the binding proof and the possession proof against the
// outstanding challenge and, only then, persists the device's public key
// material. The challenge is consumed on success; a replay of the same
// nonce fails with ErrChallengeMissing.
func (s *EnrollmentService) Finish(ctx context.Context, deviceID uuid.UUID, req *model.EnrollmentFinishRequest) (*model.EnrollmentFinishResponse, error) {
	if strings.TrimSpace(req.IdentityKey) == "" || strings.TrimSpace(req.KxKey) == "" ||
		strings.TrimSpace(req.BindingSig) == "" || strings.TrimSpace(req.Proof) == "" {
		return nil, model.ErrInvalidKeyEncoding
	}

	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	ch, err := s.challenges.Get(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if ch == nil {
		return nil, model.ErrChallengeMissing
	}
	if ch.Expired(time.Now()) {
		return nil, model.ErrChallengeExpired
	}

	ikBytes, err := base64.StdEncoding.DecodeString(req.IdentityKey)
	if err != nil {
		return nil, model.ErrInvalidKeyEncoding
	}
	kxBytes, err := base64.StdEncoding.DecodeString(req.KxKey)
	if err != nil {
		return nil, model.ErrInvalidKeyEncoding
	}
	bindingSig, err := base64.StdEncoding.DecodeString(req.BindingSig)
	if err != nil {
		return nil, model.ErrInvalidKeyEncoding
	}
	proofSig, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		return nil, model.ErrInvalidKeyEncoding
	}

	identityKey, err := parseEd25519PublicKey(ikBytes)
	if err != nil {
		return nil, model.ErrInvalidKeyEncoding
	}

	// Binding proof: the identity-key holder authorizes exactly this
	// key-exchange key.
	if !ed25519.Verify(identityKey, keyutil.BindingMessage(kxBytes), bindingSig) {
		return nil, model.ErrInvalidBindingSig
	}

	// Possession proof: live control of the identity private key, tied to
	// this device id and nonce so it cannot be replayed elsewhere.
	enrollMsg := keyutil.EnrollMessage(deviceID.String(), ch.Nonce, ikBytes, kxBytes)
	if !ed25519.Verify(identityKey, enrollMsg, proofSig) {
		return nil, model.ErrInvalidPossessionProof
	}

	platform := device.Platform
	if req.Platform != "" {
		p := strings.ToLower(req.Platform)
		if !model.IsValidPlatform(p) {
			return nil, model.ErrInvalidPlatform
		}
		platform = p
	}

	now := time.Now()
	curve := KeyCurveX25519
	device.Platform = platform
	device.IdentityKey = &req.IdentityKey
	device.KxKey = &req.KxKey
	device.KeyCurve = &curve
	device.BindingSig = bindingSig
	device.LastSeenAt = &now
	if req.DeviceName != "" {
		name := req.DeviceName
		device.DeviceName = &name
	}
	if req.PqKemKey != "" {
		pq, err := base64.StdEncoding.DecodeString(req.PqKemKey)
		if err != nil {
			return nil, model.ErrInvalidKeyEncoding
		}
		device.PqKemKey = pq
	}

	resp := &model.EnrollmentFinishResponse{}
	if s.issuer != nil {
		cert, payload, err := s.issuer.Issue(deviceID, req.IdentityKey, curve, now)
		if err != nil {
			return nil, fmt.Errorf("issue certificate: %w", err)
		}
		device.CertPayload = &cert.Payload
		sig, err := base64.StdEncoding.DecodeString(cert.Signature)
		if err != nil {
			return nil, fmt.Errorf("decode certificate signature: %w", err)
		}
		device.CertSignature = sig
		device.CertKeyID = &cert.KeyID
		issuedAt, expiresAt := payload.IssuedAt, payload.ExpiresAt
		device.CertIssuedAt = &issuedAt
		device.CertExpiresAt = &expiresAt
		resp.Certificate = cert
		resp.ExpiresAt = &expiresAt
	}

	if err := s.deviceRepo.SaveEnrollment(ctx, device); err != nil {
		return nil, err
	}

	// Single use, enforced even on success.
	if err := s.challenges.Remove(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	return resp, nil
}

// Revoke permanently deactivates a device owned by the caller. There is no
// re-activation.
func (s *EnrollmentService) Revoke(ctx context.Context, ownerHandle string, deviceID uuid.UUID) error {
	return s.deviceRepo.Revoke(ctx, ownerHandle, deviceID)
}

// parseEd25519PublicKey accepts the DER SPKI form the web crypto APIs
// export, or a raw 32-byte key.
func parseEd25519PublicKey(b []byte) (ed25519.PublicKey, error) {
	if pub, err := x509.ParsePKIXPublicKey(b); err == nil {
		if ik, ok := pub.(ed25519.PublicKey); ok {
			return ik, nil
		}
		return nil, fmt.Errorf("not an Ed25519 key")
	}
	if len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	return nil, fmt.Errorf("unsupported public key encoding")
}
