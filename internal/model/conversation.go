package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Conversation membership is managed elsewhere; the relay only reads it to
// resolve recipients and authorize senders.
type Conversation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Title     *string   `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var (
	// ErrConversationNotFound is returned when a conversation id cannot be resolved
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrNotConversationMember is returned when the sender is not a member
	ErrNotConversationMember = errors.New("sender is not a conversation member")
)
