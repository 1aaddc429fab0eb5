package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types for the realtime stream. The relay core publishes these; a
// gateway process holding the actual client sockets consumes them.
const (
	// EventMessageSent acknowledges a fan-out to the sending device only.
	EventMessageSent = "message_sent"

	// EventMessageRead is a read receipt, broadcast to the other devices of
	// the conversation.
	EventMessageRead = "message_read"
)

// Stream and consumer-group names.
const (
	StreamRealtime        = "stream:realtime"
	ConsumerGroupRealtime = "realtime_workers"
)

// RealtimeEvent is one entry on the realtime stream.
type RealtimeEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix seconds

	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`

	// message_sent: the acknowledged sender.
	SenderUserID   uuid.UUID `json:"sender_user_id,omitempty"`
	SenderDeviceID uuid.UUID `json:"sender_device_id,omitempty"`
	Deliveries     int       `json:"deliveries,omitempty"`

	// message_read: the device that read.
	ReaderDeviceID uuid.UUID `json:"reader_device_id,omitempty"`
}

// NewMessageSentEvent builds the private send acknowledgment.
func NewMessageSentEvent(messageID, conversationID, senderUserID, senderDeviceID uuid.UUID, deliveries int) RealtimeEvent {
	return RealtimeEvent{
		Type:           EventMessageSent,
		Timestamp:      time.Now().Unix(),
		MessageID:      messageID,
		ConversationID: conversationID,
		SenderUserID:   senderUserID,
		SenderDeviceID: senderDeviceID,
		Deliveries:     deliveries,
	}
}

// NewMessageReadEvent builds the conversation-wide read receipt.
func NewMessageReadEvent(messageID, conversationID, readerDeviceID uuid.UUID) RealtimeEvent {
	return RealtimeEvent{
		Type:           EventMessageRead,
		Timestamp:      time.Now().Unix(),
		MessageID:      messageID,
		ConversationID: conversationID,
		ReaderDeviceID: readerDeviceID,
	}
}

// ToMap serializes for Redis XADD: the whole event as JSON in a "data" field
// plus the type for quick inspection.
func (e RealtimeEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseRealtimeEvent is the inverse of ToMap.
func ParseRealtimeEvent(values map[string]interface{}) (RealtimeEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return RealtimeEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}
	var event RealtimeEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return RealtimeEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
