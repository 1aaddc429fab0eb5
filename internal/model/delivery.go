package model

import (
	"time"

	"github.com/google/uuid"
)

// Delivery is the per-recipient-device copy of a message. Created in the same
// transaction as its Message and immutable afterwards, except for the two
// timestamps which only ever transition from null to set:
//
//	Created -> Delivered (ack)  and  Created/Delivered -> Read (markRead)
//
// There is no enforced ordering between the two transitions; markRead without
// a prior ack is accepted.
type Delivery struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	MessageID         uuid.UUID  `db:"message_id" json:"message_id"`
	RecipientDeviceID uuid.UUID  `db:"recipient_device_id" json:"recipient_device_id"`
	Ciphertext        []byte     `db:"ciphertext" json:"ciphertext"`
	Header            string     `db:"msg_header" json:"header"` // per-recipient JSON (epoch, counter)
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// InboxItem is one pending delivery joined with its message metadata, as
// returned by inbox.fetch. Ciphertext marshals to base64 in JSON.
type InboxItem struct {
	DeliveryID     uuid.UUID `db:"delivery_id" json:"deliveryId"`
	MessageID      uuid.UUID `db:"message_id" json:"messageId"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversationId"`
	ContentType    string    `db:"content_type" json:"contentType"`
	Header         string    `db:"header" json:"header"`
	Ciphertext     []byte    `db:"ciphertext" json:"ciphertext"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
