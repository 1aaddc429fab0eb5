package service

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/repository"
)

// PrekeyService manages a device's published key-exchange material and
// assembles the public session-start bundle.
type PrekeyService struct {
	deviceRepo repository.DeviceRepository
	prekeyRepo repository.PrekeyRepository
}

func NewPrekeyService(deviceRepo repository.DeviceRepository, prekeyRepo repository.PrekeyRepository) *PrekeyService {
	return &PrekeyService{deviceRepo: deviceRepo, prekeyRepo: prekeyRepo}
}

// UploadSignedPrekey rotates the device's current signed prekey. The old one
// is gone the moment the new one commits.
func (s *PrekeyService) UploadSignedPrekey(ctx context.Context, deviceID uuid.UUID, keyID int, publicKey, signatureB64 string, validUntil *time.Time) error {
	if strings.TrimSpace(publicKey) == "" || strings.TrimSpace(signatureB64) == "" {
		return model.ErrInvalidPrekey
	}
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return model.ErrInvalidPrekey
	}

	if _, err := s.deviceRepo.GetByID(ctx, deviceID); err != nil {
		return err
	}
	return s.prekeyRepo.ReplaceSignedPrekey(ctx, deviceID, keyID, publicKey, signature, validUntil)
}

// UploadOneTimePrekeys stores a batch of unused one-time prekeys and returns
// how many were stored. No upper bound here; rate limiting is the gateway's
// concern.
func (s *PrekeyService) UploadOneTimePrekeys(ctx context.Context, deviceID uuid.UUID, items []model.OneTimePrekeyUpload) (int, error) {
	for _, item := range items {
		if strings.TrimSpace(item.PublicKey) == "" {
			return 0, model.ErrInvalidPrekey
		}
	}
	if _, err := s.deviceRepo.GetByID(ctx, deviceID); err != nil {
		return 0, err
	}
	return s.prekeyRepo.InsertOneTime(ctx, deviceID, items)
}

// CountAvailable reports remaining unused one-time prekeys, so clients know
// when to top up.
func (s *PrekeyService) CountAvailable(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	if _, err := s.deviceRepo.GetByID(ctx, deviceID); err != nil {
		return 0, err
	}
	return s.prekeyRepo.CountAvailable(ctx, deviceID)
}

// BuildBundle assembles the public session-start bundle, atomically claiming
// at most one one-time prekey. An empty pool is not an error: the bundle
// simply ships without an OPK and the session falls back to SPK-only X3DH.
//
// Revoked devices are not filtered here; revocation is enforced at fan-out
// time only.
func (s *PrekeyService) BuildBundle(ctx context.Context, deviceID uuid.UUID) (*model.PrekeyBundle, error) {
	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsEnrolled() {
		return nil, model.ErrDeviceNotEnrolled
	}

	signed, err := s.prekeyRepo.LatestSigned(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.prekeyRepo.ClaimOne(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	curve := KeyCurveX25519
	if device.KeyCurve != nil {
		curve = *device.KeyCurve
	}

	bundle := &model.PrekeyBundle{
		IdentityKey: *device.IdentityKey,
		KeyCurve:    curve,
		SignedPrekey: model.BundleSignedPrekey{
			KeyID:     signed.KeyID,
			PublicKey: signed.PublicKey,
			Signature: base64.StdEncoding.EncodeToString(signed.Signature),
		},
	}
	if claimed != nil {
		bundle.OneTimePrekey = &model.BundleOneTimePrekey{
			KeyID:     claimed.KeyID,
			PublicKey: claimed.PublicKey,
		}
	}
	if device.PqKemKey != nil {
		pq := base64.StdEncoding.EncodeToString(device.PqKemKey)
		bundle.PqKemKey = &pq
	}
	if device.CertPayload != nil {
		bundle.Certificate = &model.DeviceCertificate{
			Payload:   *device.CertPayload,
			Signature: base64.StdEncoding.EncodeToString(device.CertSignature),
		}
		if device.CertKeyID != nil {
			bundle.Certificate.KeyID = *device.CertKeyID
		}
	}
	return bundle, nil
}
