package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Content type tag for the server-originated control message that carries
// per-device sealed conversation keys.
const ContentTypeCKDistribute = "control/ck_distribute"

// Message is the per-conversation core row a fan-out hangs off. It carries
// only metadata; the ciphertext lives on the per-device deliveries.
// Immutable once created.
type Message struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	SenderID       *uuid.UUID `db:"sender_id" json:"sender_id"` // nil for control messages
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ContentType    string     `db:"content_type" json:"content_type"`
	Header         string     `db:"header" json:"header"` // opaque JSON (type, epoch, counter, ...)
}

// SendResult is returned by message.send and ck.distribute.
type SendResult struct {
	MessageID  uuid.UUID `json:"messageId"`
	CreatedAt  time.Time `json:"createdAt"`
	Deliveries int       `json:"deliveries"`
}

var (
	// ErrMessageNotFound is returned when a message id cannot be resolved
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidCiphertext is returned when a ciphertext field does not decode
	ErrInvalidCiphertext = errors.New("invalid ciphertext encoding")
)
