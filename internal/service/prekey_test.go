package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/model"
)

// =============================================================================
// MOCK PREKEY REPOSITORY
// =============================================================================

type mockPrekeyRepository struct {
	replaceSignedFn  func(ctx context.Context, deviceID uuid.UUID, keyID int, publicKey string, signature []byte, validUntil *time.Time) error
	insertOneTimeFn  func(ctx context.Context, deviceID uuid.UUID, items []model.OneTimePrekeyUpload) (int, error)
	countAvailableFn func(ctx context.Context, deviceID uuid.UUID) (int64, error)
	latestSignedFn   func(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error)
	claimOneFn       func(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error)
}

func (m *mockPrekeyRepository) ReplaceSignedPrekey(ctx context.Context, deviceID uuid.UUID, keyID int, publicKey string, signature []byte, validUntil *time.Time) error {
	if m.replaceSignedFn != nil {
		return m.replaceSignedFn(ctx, deviceID, keyID, publicKey, signature, validUntil)
	}
	return nil
}

func (m *mockPrekeyRepository) InsertOneTime(ctx context.Context, deviceID uuid.UUID, items []model.OneTimePrekeyUpload) (int, error) {
	if m.insertOneTimeFn != nil {
		return m.insertOneTimeFn(ctx, deviceID, items)
	}
	return len(items), nil
}

func (m *mockPrekeyRepository) CountAvailable(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	if m.countAvailableFn != nil {
		return m.countAvailableFn(ctx, deviceID)
	}
	return 0, nil
}

func (m *mockPrekeyRepository) LatestSigned(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
	if m.latestSignedFn != nil {
		return m.latestSignedFn(ctx, deviceID)
	}
	return nil, model.ErrNoSignedPrekey
}

func (m *mockPrekeyRepository) ClaimOne(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
	if m.claimOneFn != nil {
		return m.claimOneFn(ctx, deviceID)
	}
	return nil, nil
}

// claimPool mimics the database's claim semantics: a mutex-guarded pool
// where each prekey is handed to exactly one caller.
type claimPool struct {
	mu   sync.Mutex
	keys []*model.Prekey
}

func (p *claimPool) claim(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return nil, nil
	}
	k := p.keys[0]
	p.keys = p.keys[1:]
	return k, nil
}

// =============================================================================
// Fixtures
// =============================================================================

func enrolledDevice() *model.Device {
	ik := "base64-identity-key"
	kx := "base64-kx-key"
	curve := KeyCurveX25519
	return &model.Device{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Platform:    model.PlatformIOS,
		IdentityKey: &ik,
		KxKey:       &kx,
		KeyCurve:    &curve,
		CreatedAt:   time.Now(),
	}
}

func deviceRepoWith(device *model.Device) *mockDeviceRepository {
	return &mockDeviceRepository{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Device, error) {
			if device != nil && id == device.ID {
				return device, nil
			}
			return nil, model.ErrDeviceNotFound
		},
	}
}

// =============================================================================
// UPLOAD TESTS
// =============================================================================

func TestPrekeyService_UploadSignedPrekey_Success(t *testing.T) {
	device := enrolledDevice()
	var gotKeyID int
	prekeyRepo := &mockPrekeyRepository{
		replaceSignedFn: func(ctx context.Context, deviceID uuid.UUID, keyID int, publicKey string, signature []byte, validUntil *time.Time) error {
			gotKeyID = keyID
			return nil
		},
	}
	svc := NewPrekeyService(deviceRepoWith(device), prekeyRepo)

	err := svc.UploadSignedPrekey(context.Background(), device.ID, 7, "spk-public", "c2ln", nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if gotKeyID != 7 {
		t.Errorf("keyID = %d, want 7", gotKeyID)
	}
}

func TestPrekeyService_UploadSignedPrekey_Invalid(t *testing.T) {
	device := enrolledDevice()
	svc := NewPrekeyService(deviceRepoWith(device), &mockPrekeyRepository{})

	if err := svc.UploadSignedPrekey(context.Background(), device.ID, 1, "", "c2ln", nil); !errors.Is(err, model.ErrInvalidPrekey) {
		t.Errorf("empty public key: expected ErrInvalidPrekey, got: %v", err)
	}
	if err := svc.UploadSignedPrekey(context.Background(), device.ID, 1, "spk", "%%%", nil); !errors.Is(err, model.ErrInvalidPrekey) {
		t.Errorf("bad signature base64: expected ErrInvalidPrekey, got: %v", err)
	}
}

func TestPrekeyService_UploadOneTimePrekeys_UnknownDevice(t *testing.T) {
	svc := NewPrekeyService(deviceRepoWith(nil), &mockPrekeyRepository{})

	_, err := svc.UploadOneTimePrekeys(context.Background(), uuid.New(), []model.OneTimePrekeyUpload{{KeyID: 1, PublicKey: "opk"}})
	if !errors.Is(err, model.ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got: %v", err)
	}
}

// =============================================================================
// BUNDLE TESTS
// =============================================================================

func TestPrekeyService_BuildBundle_WithOneTimePrekey(t *testing.T) {
	device := enrolledDevice()
	prekeyRepo := &mockPrekeyRepository{
		latestSignedFn: func(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
			return &model.Prekey{KeyID: 3, PublicKey: "spk-public", Signature: []byte("sig")}, nil
		},
		claimOneFn: func(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
			return &model.Prekey{KeyID: 42, PublicKey: "opk-public"}, nil
		},
	}
	svc := NewPrekeyService(deviceRepoWith(device), prekeyRepo)

	bundle, err := svc.BuildBundle(context.Background(), device.ID)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if bundle.IdentityKey != *device.IdentityKey {
		t.Error("bundle identity key does not match device")
	}
	if bundle.KeyCurve != KeyCurveX25519 {
		t.Errorf("curve = %q, want %q", bundle.KeyCurve, KeyCurveX25519)
	}
	if bundle.SignedPrekey.KeyID != 3 || bundle.SignedPrekey.PublicKey != "spk-public" {
		t.Error("signed prekey not assembled from the latest row")
	}
	if bundle.OneTimePrekey == nil || bundle.OneTimePrekey.KeyID != 42 {
		t.Error("claimed one-time prekey missing from bundle")
	}
}

func TestPrekeyService_BuildBundle_EmptyPool(t *testing.T) {
	device := enrolledDevice()
	prekeyRepo := &mockPrekeyRepository{
		latestSignedFn: func(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
			return &model.Prekey{KeyID: 3, PublicKey: "spk-public", Signature: []byte("sig")}, nil
		},
		// claimOneFn nil: default (nil, nil), the dry-pool outcome
	}
	svc := NewPrekeyService(deviceRepoWith(device), prekeyRepo)

	bundle, err := svc.BuildBundle(context.Background(), device.ID)
	if err != nil {
		t.Fatalf("a dry pool must not fail the bundle, got: %v", err)
	}
	if bundle.OneTimePrekey != nil {
		t.Error("expected no one-time prekey in the bundle")
	}
}

func TestPrekeyService_BuildBundle_NoSignedPrekey(t *testing.T) {
	device := enrolledDevice()
	svc := NewPrekeyService(deviceRepoWith(device), &mockPrekeyRepository{})

	_, err := svc.BuildBundle(context.Background(), device.ID)
	if !errors.Is(err, model.ErrNoSignedPrekey) {
		t.Errorf("expected ErrNoSignedPrekey, got: %v", err)
	}
}

func TestPrekeyService_BuildBundle_NotEnrolled(t *testing.T) {
	device := enrolledDevice()
	device.IdentityKey = nil
	svc := NewPrekeyService(deviceRepoWith(device), &mockPrekeyRepository{})

	_, err := svc.BuildBundle(context.Background(), device.ID)
	if !errors.Is(err, model.ErrDeviceNotEnrolled) {
		t.Errorf("expected ErrDeviceNotEnrolled, got: %v", err)
	}
}

// Each one-time prekey must be claimed by exactly one of N concurrent bundle
// builds; the rest fall back to SPK-only bundles.
func TestPrekeyService_BuildBundle_ConcurrentClaims(t *testing.T) {
	device := enrolledDevice()

	const available = 3
	const claimers = 10
	pool := &claimPool{}
	for i := 0; i < available; i++ {
		pool.keys = append(pool.keys, &model.Prekey{KeyID: i, PublicKey: "opk"})
	}

	prekeyRepo := &mockPrekeyRepository{
		latestSignedFn: func(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
			return &model.Prekey{KeyID: 1, PublicKey: "spk", Signature: []byte("sig")}, nil
		},
		claimOneFn: pool.claim,
	}
	svc := NewPrekeyService(deviceRepoWith(device), prekeyRepo)

	var wg sync.WaitGroup
	results := make(chan *model.BundleOneTimePrekey, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle, err := svc.BuildBundle(context.Background(), device.ID)
			if err != nil {
				t.Errorf("bundle build failed: %v", err)
				return
			}
			results <- bundle.OneTimePrekey
		}()
	}
	wg.Wait()
	close(results)

	claimed := map[int]bool{}
	withOPK := 0
	for opk := range results {
		if opk == nil {
			continue
		}
		withOPK++
		if claimed[opk.KeyID] {
			t.Errorf("one-time prekey %d handed out twice", opk.KeyID)
		}
		claimed[opk.KeyID] = true
	}
	if withOPK != available {
		t.Errorf("claimed %d one-time prekeys, want exactly %d", withOPK, available)
	}
}
