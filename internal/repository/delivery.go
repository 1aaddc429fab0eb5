package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Manz2/chat-e2e/internal/model"
)

type deliveryRepository struct {
	db *sqlx.DB
}

func NewDeliveryRepository(db *sqlx.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

// FetchInbox is a plain snapshot read, no locking. Acknowledged rows stay
// fetchable on purpose: the cursor, not the delivered flag, is what advances
// a client through its inbox.
func (r *deliveryRepository) FetchInbox(ctx context.Context, deviceID uuid.UUID, cursor *model.InboxCursor, limit int) ([]model.InboxItem, error) {
	query := `
		SELECT d.id AS delivery_id, m.id AS message_id, m.conversation_id,
		       m.content_type, m.header, d.ciphertext, m.created_at
		FROM message_delivery d
		JOIN message_core m ON m.id = d.message_id
		WHERE d.recipient_device_id = $1
	`
	args := []interface{}{deviceID}
	if cursor != nil {
		query += ` AND (m.created_at, m.id) > ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.MessageID)
	}
	query += fmt.Sprintf(` ORDER BY m.created_at ASC, m.id ASC LIMIT %d`, limit)

	items := []model.InboxItem{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("fetch inbox: %w", err)
	}
	return items, nil
}

// Ack only touches rows whose delivered_at is still null, which makes
// repeated acks no-ops that never move the original timestamp.
func (r *deliveryRepository) Ack(ctx context.Context, deviceID uuid.UUID, deliveryIDs []uuid.UUID) error {
	if len(deliveryIDs) == 0 {
		return nil
	}
	ids := make([]string, len(deliveryIDs))
	for i, id := range deliveryIDs {
		ids[i] = id.String()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE message_delivery
		SET delivered_at = NOW()
		WHERE recipient_device_id = $1
		  AND id = ANY($2)
		  AND delivered_at IS NULL
	`, deviceID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("ack deliveries: %w", err)
	}
	return nil
}

func (r *deliveryRepository) MarkRead(ctx context.Context, deviceID, messageID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE message_delivery
		SET read_at = NOW()
		WHERE recipient_device_id = $1
		  AND message_id = $2
		  AND read_at IS NULL
	`, deviceID, messageID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}
