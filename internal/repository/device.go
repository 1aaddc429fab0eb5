package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Manz2/chat-e2e/internal/model"
)

type deviceRepository struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

const deviceColumns = `
	id, user_id, device_name, platform, public_identity_key, public_kx_key,
	key_curve, identity_binding_sig, pqkem_public_key, cert_payload,
	cert_signature, cert_key_id, cert_issued_at, cert_expires_at,
	revoked_at, created_at, last_seen_at`

// CreateScaffold inserts the minimal row enroll.start needs. The platform
// starts as "unknown" until enroll.finish sets it.
func (r *deviceRepository) CreateScaffold(ctx context.Context, userID uuid.UUID) (*model.Device, error) {
	query := `
		INSERT INTO user_device (user_id, platform)
		VALUES ($1, $2)
		RETURNING ` + deviceColumns
	var device model.Device
	err := r.db.GetContext(ctx, &device, query, userID, model.PlatformUnknown)
	if err != nil {
		return nil, fmt.Errorf("insert device scaffold: %w", err)
	}
	return &device, nil
}

func (r *deviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM user_device WHERE id = $1`
	var device model.Device
	err := r.db.GetContext(ctx, &device, query, id)
	if err == sql.ErrNoRows {
		return nil, model.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &device, nil
}

func (r *deviceRepository) SaveEnrollment(ctx context.Context, device *model.Device) error {
	query := `
		UPDATE user_device
		SET device_name          = $2,
		    platform             = $3,
		    public_identity_key  = $4,
		    public_kx_key        = $5,
		    key_curve            = $6,
		    identity_binding_sig = $7,
		    pqkem_public_key     = $8,
		    cert_payload         = $9,
		    cert_signature       = $10,
		    cert_key_id          = $11,
		    cert_issued_at       = $12,
		    cert_expires_at      = $13,
		    last_seen_at         = $14
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		device.ID, device.DeviceName, device.Platform, device.IdentityKey,
		device.KxKey, device.KeyCurve, device.BindingSig, device.PqKemKey,
		device.CertPayload, device.CertSignature, device.CertKeyID,
		device.CertIssuedAt, device.CertExpiresAt, device.LastSeenAt)
	if err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrDeviceNotFound
	}
	return nil
}

// Revoke is ownership-checked in the statement itself: the update only
// matches when the device's user has the given handle. A zero row count is
// then disambiguated into not-found vs not-owner.
func (r *deviceRepository) Revoke(ctx context.Context, ownerHandle string, deviceID uuid.UUID) error {
	query := `
		UPDATE user_device d
		SET revoked_at = NOW()
		FROM app_user u
		WHERE d.id = $1 AND d.user_id = u.id AND u.handle = $2 AND d.revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, deviceID, ownerHandle)
	if err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM user_device WHERE id = $1 AND revoked_at IS NULL)`, deviceID)
		if exists {
			return model.ErrNotDeviceOwner
		}
		return model.ErrDeviceNotFound
	}
	return nil
}

func (r *deviceRepository) ListByUserHandle(ctx context.Context, handle string) ([]model.DeviceSummary, error) {
	query := `
		SELECT d.id, d.device_name, d.platform, d.created_at, d.last_seen_at,
		       (d.revoked_at IS NOT NULL) AS revoked
		FROM user_device d
		JOIN app_user u ON u.id = d.user_id
		WHERE u.handle = $1
		ORDER BY d.created_at ASC
	`
	devices := []model.DeviceSummary{}
	if err := r.db.SelectContext(ctx, &devices, query, handle); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}
