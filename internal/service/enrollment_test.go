package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/challenge"
	"github.com/Manz2/chat-e2e/internal/keyutil"
	"github.com/Manz2/chat-e2e/internal/model"
)

// =============================================================================
// MOCK REPOSITORIES
// =============================================================================
//
// The services depend on the repository INTERFACES, so unit tests swap in
// mocks with per-test behavior instead of hitting a real database.

type mockUserRepository struct {
	createFn      func(ctx context.Context, user *model.User) error
	getByHandleFn func(ctx context.Context, handle string) (*model.User, error)
	getByIDFn     func(ctx context.Context, id uuid.UUID) (*model.User, error)
}

func (m *mockUserRepository) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepository) GetByHandle(ctx context.Context, handle string) (*model.User, error) {
	if m.getByHandleFn != nil {
		return m.getByHandleFn(ctx, handle)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrUserNotFound
}

type mockDeviceRepository struct {
	createScaffoldFn   func(ctx context.Context, userID uuid.UUID) (*model.Device, error)
	getByIDFn          func(ctx context.Context, id uuid.UUID) (*model.Device, error)
	saveEnrollmentFn   func(ctx context.Context, device *model.Device) error
	revokeFn           func(ctx context.Context, ownerHandle string, deviceID uuid.UUID) error
	listByUserHandleFn func(ctx context.Context, handle string) ([]model.DeviceSummary, error)

	savedDevices []*model.Device
}

func (m *mockDeviceRepository) CreateScaffold(ctx context.Context, userID uuid.UUID) (*model.Device, error) {
	if m.createScaffoldFn != nil {
		return m.createScaffoldFn(ctx, userID)
	}
	return &model.Device{ID: uuid.New(), UserID: userID, Platform: model.PlatformUnknown, CreatedAt: time.Now()}, nil
}

func (m *mockDeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrDeviceNotFound
}

func (m *mockDeviceRepository) SaveEnrollment(ctx context.Context, device *model.Device) error {
	m.savedDevices = append(m.savedDevices, device)
	if m.saveEnrollmentFn != nil {
		return m.saveEnrollmentFn(ctx, device)
	}
	return nil
}

func (m *mockDeviceRepository) Revoke(ctx context.Context, ownerHandle string, deviceID uuid.UUID) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, ownerHandle, deviceID)
	}
	return nil
}

func (m *mockDeviceRepository) ListByUserHandle(ctx context.Context, handle string) ([]model.DeviceSummary, error) {
	if m.listByUserHandleFn != nil {
		return m.listByUserHandleFn(ctx, handle)
	}
	return nil, nil
}

// =============================================================================
// Test Fixtures
// =============================================================================

// enrollingDevice holds everything a test needs to complete (or sabotage) an
// enrollment: the scaffolded device, the outstanding nonce, and the private
// keys a real client would hold.
type enrollingDevice struct {
	device *model.Device
	nonce  string
	keys   *keyutil.IdentityKeyPair
	ikSPKI []byte
	kxPub  []byte
}

func newEnrollingDevice(t *testing.T) *enrollingDevice {
	t.Helper()

	keys, err := keyutil.NewIdentityKeyPair()
	if err != nil {
		t.Fatalf("generate identity pair: %v", err)
	}
	ikSPKI, err := keys.PublicSPKI()
	if err != nil {
		t.Fatalf("marshal identity key: %v", err)
	}
	kxPub, err := keyutil.NewKxPublicKey()
	if err != nil {
		t.Fatalf("generate kx key: %v", err)
	}

	return &enrollingDevice{
		device: &model.Device{ID: uuid.New(), UserID: uuid.New(), Platform: model.PlatformUnknown, CreatedAt: time.Now()},
		nonce:  keyutil.B64([]byte("test-nonce-0123456789abcdef012345")),
		keys:   keys,
		ikSPKI: ikSPKI,
		kxPub:  kxPub,
	}
}

// finishRequest signs valid binding and possession proofs for the device.
func (e *enrollingDevice) finishRequest() *model.EnrollmentFinishRequest {
	bindingSig := ed25519.Sign(e.keys.Private, keyutil.BindingMessage(e.kxPub))
	proof := ed25519.Sign(e.keys.Private, keyutil.EnrollMessage(e.device.ID.String(), e.nonce, e.ikSPKI, e.kxPub))

	return &model.EnrollmentFinishRequest{
		IdentityKey: keyutil.B64(e.ikSPKI),
		KxKey:       keyutil.B64(e.kxPub),
		BindingSig:  keyutil.B64(bindingSig),
		Proof:       keyutil.B64(proof),
		Platform:    model.PlatformAndroid,
	}
}

// newEnrollmentFixture wires a service around the enrolling device with the
// challenge already outstanding, as if Start had just run.
func newEnrollmentFixture(t *testing.T, e *enrollingDevice) (*EnrollmentService, *mockDeviceRepository, challenge.Store) {
	t.Helper()

	deviceRepo := &mockDeviceRepository{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Device, error) {
			if id == e.device.ID {
				return e.device, nil
			}
			return nil, model.ErrDeviceNotFound
		},
	}
	challenges := challenge.NewMemoryStore(time.Hour)
	t.Cleanup(challenges.Stop)

	err := challenges.Put(context.Background(), e.device.ID, challenge.Challenge{
		Nonce:     e.nonce,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	svc := NewEnrollmentService(&mockUserRepository{}, deviceRepo, challenges, nil, 5*time.Minute)
	return svc, deviceRepo, challenges
}

// =============================================================================
// START TESTS
// =============================================================================

func TestEnrollmentService_Start_Success(t *testing.T) {
	userID := uuid.New()
	userRepo := &mockUserRepository{
		getByHandleFn: func(ctx context.Context, handle string) (*model.User, error) {
			return &model.User{ID: userID, Handle: handle}, nil
		},
	}
	deviceRepo := &mockDeviceRepository{}
	challenges := challenge.NewMemoryStore(time.Hour)
	t.Cleanup(challenges.Stop)

	svc := NewEnrollmentService(userRepo, deviceRepo, challenges, nil, 5*time.Minute)

	resp, err := svc.Start(context.Background(), "alice")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if resp.DeviceID == uuid.Nil {
		t.Error("expected a device id")
	}
	if resp.Nonce == "" {
		t.Error("expected a nonce")
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Error("expected expiry in the future")
	}

	// The challenge must be retrievable under the device id.
	ch, err := challenges.Get(context.Background(), resp.DeviceID)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if ch == nil || ch.Nonce != resp.Nonce {
		t.Error("stored challenge does not match the response nonce")
	}
}

func TestEnrollmentService_Start_UnknownUser(t *testing.T) {
	challenges := challenge.NewMemoryStore(time.Hour)
	t.Cleanup(challenges.Stop)
	svc := NewEnrollmentService(&mockUserRepository{}, &mockDeviceRepository{}, challenges, nil, 5*time.Minute)

	_, err := svc.Start(context.Background(), "nobody")
	if !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got: %v", err)
	}
}

// =============================================================================
// FINISH TESTS
// =============================================================================

func TestEnrollmentService_Finish_Success(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, deviceRepo, challenges := newEnrollmentFixture(t, e)

	req := e.finishRequest()
	req.DeviceName = "Pixel 9"

	_, err := svc.Finish(context.Background(), e.device.ID, req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(deviceRepo.savedDevices) != 1 {
		t.Fatalf("expected 1 SaveEnrollment call, got %d", len(deviceRepo.savedDevices))
	}
	saved := deviceRepo.savedDevices[0]
	if saved.IdentityKey == nil || *saved.IdentityKey != req.IdentityKey {
		t.Error("identity key not persisted as uploaded")
	}
	if saved.KxKey == nil || *saved.KxKey != req.KxKey {
		t.Error("kx key not persisted as uploaded")
	}
	if saved.KeyCurve == nil || *saved.KeyCurve != KeyCurveX25519 {
		t.Error("key curve not recorded")
	}
	if saved.Platform != model.PlatformAndroid {
		t.Errorf("platform = %q, want %q", saved.Platform, model.PlatformAndroid)
	}
	if saved.DeviceName == nil || *saved.DeviceName != "Pixel 9" {
		t.Error("device name not persisted")
	}

	// The challenge is consumed on success.
	ch, err := challenges.Get(context.Background(), e.device.ID)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if ch != nil {
		t.Error("challenge should be consumed after a successful finish")
	}
}

func TestEnrollmentService_Finish_NonceSingleUse(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, _, _ := newEnrollmentFixture(t, e)

	req := e.finishRequest()
	if _, err := svc.Finish(context.Background(), e.device.ID, req); err != nil {
		t.Fatalf("first finish: %v", err)
	}

	// Replaying the identical, correctly signed request must fail: the
	// nonce is gone.
	_, err := svc.Finish(context.Background(), e.device.ID, req)
	if !errors.Is(err, model.ErrChallengeMissing) {
		t.Errorf("expected ErrChallengeMissing on replay, got: %v", err)
	}
}

func TestEnrollmentService_Finish_ExpiredChallenge(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, deviceRepo, challenges := newEnrollmentFixture(t, e)

	// Overwrite with an already-expired challenge. MemoryStore.Get treats
	// expired entries as absent, so expiry surfaces as a missing challenge.
	err := challenges.Put(context.Background(), e.device.ID, challenge.Challenge{
		Nonce:     e.nonce,
		ExpiresAt: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	_, err = svc.Finish(context.Background(), e.device.ID, e.finishRequest())
	if !errors.Is(err, model.ErrChallengeMissing) && !errors.Is(err, model.ErrChallengeExpired) {
		t.Errorf("expected a challenge error, got: %v", err)
	}
	if len(deviceRepo.savedDevices) != 0 {
		t.Error("nothing may be persisted when the challenge is gone")
	}
}

func TestEnrollmentService_Finish_WrongNonceInProof(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, deviceRepo, _ := newEnrollmentFixture(t, e)

	// Sign the possession proof over a different nonce, as a replay from an
	// earlier challenge would.
	req := e.finishRequest()
	wrongMsg := keyutil.EnrollMessage(e.device.ID.String(), keyutil.B64([]byte("stale-nonce")), e.ikSPKI, e.kxPub)
	req.Proof = keyutil.B64(ed25519.Sign(e.keys.Private, wrongMsg))

	_, err := svc.Finish(context.Background(), e.device.ID, req)
	if !errors.Is(err, model.ErrInvalidPossessionProof) {
		t.Errorf("expected ErrInvalidPossessionProof, got: %v", err)
	}
	if len(deviceRepo.savedDevices) != 0 {
		t.Error("nothing may be persisted on proof failure")
	}
}

func TestEnrollmentService_Finish_ProofBoundToDevice(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, _, _ := newEnrollmentFixture(t, e)

	// A proof signed for some other device id must not verify here.
	req := e.finishRequest()
	otherMsg := keyutil.EnrollMessage(uuid.NewString(), e.nonce, e.ikSPKI, e.kxPub)
	req.Proof = keyutil.B64(ed25519.Sign(e.keys.Private, otherMsg))

	_, err := svc.Finish(context.Background(), e.device.ID, req)
	if !errors.Is(err, model.ErrInvalidPossessionProof) {
		t.Errorf("expected ErrInvalidPossessionProof, got: %v", err)
	}
}

func TestEnrollmentService_Finish_BindingSigOverWrongKxKey(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, _, _ := newEnrollmentFixture(t, e)

	// Binding signature covers a different kx key than the one uploaded.
	otherKx, err := keyutil.NewKxPublicKey()
	if err != nil {
		t.Fatalf("generate kx key: %v", err)
	}
	req := e.finishRequest()
	req.BindingSig = keyutil.B64(ed25519.Sign(e.keys.Private, keyutil.BindingMessage(otherKx)))

	_, err = svc.Finish(context.Background(), e.device.ID, req)
	if !errors.Is(err, model.ErrInvalidBindingSig) {
		t.Errorf("expected ErrInvalidBindingSig, got: %v", err)
	}
}

func TestEnrollmentService_Finish_ForeignIdentityKey(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, _, _ := newEnrollmentFixture(t, e)

	// Proofs signed with a key other than the uploaded identity key.
	attacker, err := keyutil.NewIdentityKeyPair()
	if err != nil {
		t.Fatalf("generate attacker pair: %v", err)
	}
	req := e.finishRequest()
	req.BindingSig = keyutil.B64(ed25519.Sign(attacker.Private, keyutil.BindingMessage(e.kxPub)))

	_, err = svc.Finish(context.Background(), e.device.ID, req)
	if !errors.Is(err, model.ErrInvalidBindingSig) {
		t.Errorf("expected ErrInvalidBindingSig, got: %v", err)
	}
}

func TestEnrollmentService_Finish_RawIdentityKeyAccepted(t *testing.T) {
	e := newEnrollingDevice(t)

	// Some clients upload the raw 32-byte Ed25519 key instead of DER SPKI.
	// The proofs then cover the raw bytes.
	rawIK := []byte(e.keys.Public)
	e.ikSPKI = rawIK
	svc, deviceRepo, _ := newEnrollmentFixture(t, e)

	_, err := svc.Finish(context.Background(), e.device.ID, e.finishRequest())
	if err != nil {
		t.Fatalf("expected raw key to be accepted, got: %v", err)
	}
	if len(deviceRepo.savedDevices) != 1 {
		t.Error("expected the enrollment to be persisted")
	}
}

func TestEnrollmentService_Finish_BadKeyEncoding(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, _, _ := newEnrollmentFixture(t, e)

	cases := map[string]func(r *model.EnrollmentFinishRequest){
		"empty identity key":  func(r *model.EnrollmentFinishRequest) { r.IdentityKey = "" },
		"bad base64":          func(r *model.EnrollmentFinishRequest) { r.KxKey = "%%%not-base64%%%" },
		"truncated raw key":   func(r *model.EnrollmentFinishRequest) { r.IdentityKey = keyutil.B64([]byte("short")) },
		"bad pq kem encoding": func(r *model.EnrollmentFinishRequest) { r.PqKemKey = "%%%" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := e.finishRequest()
			mutate(req)
			_, err := svc.Finish(context.Background(), e.device.ID, req)
			if !errors.Is(err, model.ErrInvalidKeyEncoding) {
				t.Errorf("expected ErrInvalidKeyEncoding, got: %v", err)
			}
		})
	}
}

func TestEnrollmentService_Finish_InvalidPlatform(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, _, _ := newEnrollmentFixture(t, e)

	req := e.finishRequest()
	req.Platform = "smartfridge"

	_, err := svc.Finish(context.Background(), e.device.ID, req)
	if !errors.Is(err, model.ErrInvalidPlatform) {
		t.Errorf("expected ErrInvalidPlatform, got: %v", err)
	}
}

func TestEnrollmentService_Finish_UnknownDevice(t *testing.T) {
	e := newEnrollingDevice(t)
	svc, _, _ := newEnrollmentFixture(t, e)

	_, err := svc.Finish(context.Background(), uuid.New(), e.finishRequest())
	if !errors.Is(err, model.ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got: %v", err)
	}
}

// =============================================================================
// REVOKE TESTS
// =============================================================================

func TestEnrollmentService_Revoke_NotOwner(t *testing.T) {
	deviceRepo := &mockDeviceRepository{
		revokeFn: func(ctx context.Context, ownerHandle string, deviceID uuid.UUID) error {
			return model.ErrNotDeviceOwner
		},
	}
	challenges := challenge.NewMemoryStore(time.Hour)
	t.Cleanup(challenges.Stop)
	svc := NewEnrollmentService(&mockUserRepository{}, deviceRepo, challenges, nil, 5*time.Minute)

	err := svc.Revoke(context.Background(), "mallory", uuid.New())
	if !errors.Is(err, model.ErrNotDeviceOwner) {
		t.Errorf("expected ErrNotDeviceOwner, got: %v", err)
	}
}
