package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Manz2/chat-e2e/internal/model"
)

type messageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, created_at, content_type, header
		FROM message_core
		WHERE id = $1
	`
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, query, id)
	if err == sql.ErrNoRows {
		return nil, model.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// CreateWithFanout writes the message core and all its deliveries in one
// transaction. The recipient set (every member device except the sender's,
// skipping devices revoked as of this statement) is resolved by the insert
// itself, so a message is never visible without its full fan-out.
func (r *messageRepository) CreateWithFanout(ctx context.Context, msg *model.Message, senderDeviceID uuid.UUID, deliveryHeader string, ciphertext []byte) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	coreQuery := `
		INSERT INTO message_core (conversation_id, sender_id, content_type, header)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, sender_id, created_at, content_type, header
	`
	if err := tx.GetContext(ctx, msg, coreQuery, msg.ConversationID, msg.SenderID, msg.ContentType, msg.Header); err != nil {
		return 0, fmt.Errorf("insert message core: %w", err)
	}

	fanoutQuery := `
		INSERT INTO message_delivery (message_id, recipient_device_id, ciphertext, msg_header)
		SELECT $1, d.id, $2, $3
		FROM conversation_member_device cmd
		JOIN user_device d ON d.id = cmd.device_id
		WHERE cmd.conversation_id = $4
		  AND d.id <> $5
		  AND d.revoked_at IS NULL
	`
	result, err := tx.ExecContext(ctx, fanoutQuery, msg.ID, ciphertext, deliveryHeader, msg.ConversationID, senderDeviceID)
	if err != nil {
		return 0, fmt.Errorf("insert deliveries: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return int(rows), nil
}

// CreateControl writes a control message and one delivery per sealed payload.
// Each insert carries its own membership predicate: a payload addressed to a
// device that is not currently in the conversation inserts zero rows and is
// thereby skipped without failing the batch.
func (r *messageRepository) CreateControl(ctx context.Context, msg *model.Message, sealed map[uuid.UUID][]byte, deliveryHeader string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	coreQuery := `
		INSERT INTO message_core (conversation_id, sender_id, content_type, header)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, sender_id, created_at, content_type, header
	`
	if err := tx.GetContext(ctx, msg, coreQuery, msg.ConversationID, msg.SenderID, msg.ContentType, msg.Header); err != nil {
		return 0, fmt.Errorf("insert control message core: %w", err)
	}

	deliveryQuery := `
		INSERT INTO message_delivery (message_id, recipient_device_id, ciphertext, msg_header)
		SELECT $1, $2, $3, $4
		WHERE EXISTS(
			SELECT 1 FROM conversation_member_device
			WHERE conversation_id = $5 AND device_id = $2
		)
	`
	deliveries := 0
	for deviceID, ciphertext := range sealed {
		result, err := tx.ExecContext(ctx, deliveryQuery, msg.ID, deviceID, ciphertext, deliveryHeader, msg.ConversationID)
		if err != nil {
			return 0, fmt.Errorf("insert control delivery for %s: %w", deviceID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("get rows affected: %w", err)
		}
		deliveries += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return deliveries, nil
}
