package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Manz2/chat-e2e/internal/queue"
)

// Broadcaster pushes a payload to a named channel. The redis-backed
// implementation maps this to PUBLISH; a gateway process subscribed to the
// channels owns the actual client sockets.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, payload []byte) error
}

// Channel naming: send acks go to the sending user privately, read receipts
// to everyone watching the conversation.
func userChannel(userID string) string { return "user:" + userID }
func convChannel(convID string) string { return "conv:" + convID }

// Handler turns realtime stream events into channel broadcasts.
type Handler struct {
	broadcaster Broadcaster
}

func NewHandler(broadcaster Broadcaster) *Handler {
	return &Handler{broadcaster: broadcaster}
}

// HandleEvent routes one event. A send acknowledgment is private to the
// sender; a read receipt is broadcast to the conversation.
func (h *Handler) HandleEvent(ctx context.Context, event queue.RealtimeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	switch event.Type {
	case queue.EventMessageSent:
		return h.broadcaster.Broadcast(ctx, userChannel(event.SenderUserID.String()), payload)
	case queue.EventMessageRead:
		return h.broadcaster.Broadcast(ctx, convChannel(event.ConversationID.String()), payload)
	default:
		log.Printf("[Worker] unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}
