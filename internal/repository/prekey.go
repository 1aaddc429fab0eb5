package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Manz2/chat-e2e/internal/model"
)

type prekeyRepository struct {
	db *sqlx.DB
}

func NewPrekeyRepository(db *sqlx.DB) PrekeyRepository {
	return &prekeyRepository{db: db}
}

const prekeyColumns = `
	id, device_id, kind, key_id, public_key, signature, valid_until,
	is_used, claimed_at, created_at`

// ReplaceSignedPrekey swaps the device's current signed prekey inside one
// transaction so readers never see zero or two of them across the swap.
func (r *prekeyRepository) ReplaceSignedPrekey(ctx context.Context, deviceID uuid.UUID, keyID int, publicKey string, signature []byte, validUntil *time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM user_key WHERE device_id = $1 AND kind = $2
	`, deviceID, model.PrekeySigned)
	if err != nil {
		return fmt.Errorf("delete old signed prekeys: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_key (device_id, kind, key_id, public_key, signature, valid_until, is_used)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`, deviceID, model.PrekeySigned, keyID, publicKey, signature, validUntil)
	if err != nil {
		return fmt.Errorf("insert signed prekey: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *prekeyRepository) InsertOneTime(ctx context.Context, deviceID uuid.UUID, items []model.OneTimePrekeyUpload) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO user_key (device_id, kind, key_id, public_key, is_used)
		VALUES ($1, $2, $3, $4, FALSE)
	`
	stored := 0
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, query, deviceID, model.PrekeyOneTime, item.KeyID, item.PublicKey); err != nil {
			return 0, fmt.Errorf("insert one-time prekey %d: %w", item.KeyID, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return stored, nil
}

func (r *prekeyRepository) CountAvailable(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM user_key
		WHERE device_id = $1 AND kind = $2 AND is_used = FALSE
	`, deviceID, model.PrekeyOneTime)
	if err != nil {
		return 0, fmt.Errorf("count one-time prekeys: %w", err)
	}
	return count, nil
}

func (r *prekeyRepository) LatestSigned(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
	query := `
		SELECT ` + prekeyColumns + `
		FROM user_key
		WHERE device_id = $1 AND kind = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var key model.Prekey
	err := r.db.GetContext(ctx, &key, query, deviceID, model.PrekeySigned)
	if err == sql.ErrNoRows {
		return nil, model.ErrNoSignedPrekey
	}
	if err != nil {
		return nil, fmt.Errorf("get signed prekey: %w", err)
	}
	return &key, nil
}

// ClaimOne is the single contention point of the whole service. The claim is
// one conditional update: the row is selected and flipped under row-level
// exclusion (FOR UPDATE SKIP LOCKED), so two concurrent callers can never
// claim the same key and an empty pool simply returns no row.
func (r *prekeyRepository) ClaimOne(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error) {
	query := `
		WITH next_key AS (
			SELECT id FROM user_key
			WHERE device_id = $1 AND kind = $2 AND is_used = FALSE
			ORDER BY created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE user_key k
		SET is_used = TRUE, claimed_at = NOW()
		FROM next_key
		WHERE k.id = next_key.id
		RETURNING ` + prekeyColumnsPrefixed
	var key model.Prekey
	err := r.db.GetContext(ctx, &key, query, deviceID, model.PrekeyOneTime)
	if err == sql.ErrNoRows {
		return nil, nil // pool empty: bundle proceeds without an OPK
	}
	if err != nil {
		return nil, fmt.Errorf("claim one-time prekey: %w", err)
	}
	return &key, nil
}

const prekeyColumnsPrefixed = `
	k.id, k.device_id, k.kind, k.key_id, k.public_key, k.signature,
	k.valid_until, k.is_used, k.claimed_at, k.created_at`
