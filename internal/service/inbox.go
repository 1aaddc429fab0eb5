package service

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/queue"
	"github.com/Manz2/chat-e2e/internal/repository"
)

const (
	// DefaultInboxLimit applies when the caller passes no limit.
	DefaultInboxLimit = 50

	// MaxInboxLimit caps a single page.
	MaxInboxLimit = 200
)

// InboxPage is one cursor page of pending deliveries.
type InboxPage struct {
	Items      []model.InboxItem `json:"items"`
	NextCursor string            `json:"nextCursor"`
}

// InboxService serves per-device delivery retrieval and the two one-way
// acknowledgment transitions.
type InboxService struct {
	deliveryRepo repository.DeliveryRepository
	messageRepo  repository.MessageRepository
	publisher    queue.Publisher // nil when no realtime stream is wired
}

func NewInboxService(deliveryRepo repository.DeliveryRepository, messageRepo repository.MessageRepository, publisher queue.Publisher) *InboxService {
	return &InboxService{
		deliveryRepo: deliveryRepo,
		messageRepo:  messageRepo,
		publisher:    publisher,
	}
}

// Fetch returns the next page of deliveries after the cursor. An empty page
// returns the caller's cursor unchanged, so polling at the tail is an
// idempotent no-op and the cursor never regresses.
func (s *InboxService) Fetch(ctx context.Context, deviceID uuid.UUID, cursorStr string, limit int) (*InboxPage, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	if limit > MaxInboxLimit {
		limit = MaxInboxLimit
	}

	cursor := model.DecodeInboxCursor(cursorStr)
	items, err := s.deliveryRepo.FetchInbox(ctx, deviceID, cursor, limit)
	if err != nil {
		return nil, err
	}

	next := cursorStr
	if len(items) > 0 {
		last := items[len(items)-1]
		next = (&model.InboxCursor{CreatedAt: last.CreatedAt, MessageID: last.MessageID}).Encode()
	}
	return &InboxPage{Items: items, NextCursor: next}, nil
}

// Ack marks deliveries as delivered. Already-delivered rows are untouched;
// calling twice with the same ids is a no-op, not an error.
func (s *InboxService) Ack(ctx context.Context, deviceID uuid.UUID, deliveryIDs []uuid.UUID) error {
	return s.deliveryRepo.Ack(ctx, deviceID, deliveryIDs)
}

// MarkRead sets the read timestamp on the device's delivery of the message
// and emits the read receipt. A prior Ack is not required.
func (s *InboxService) MarkRead(ctx context.Context, deviceID, messageID uuid.UUID) error {
	if err := s.deliveryRepo.MarkRead(ctx, deviceID, messageID); err != nil {
		return err
	}

	if s.publisher != nil {
		msg, err := s.messageRepo.GetByID(ctx, messageID)
		if err != nil {
			if errors.Is(err, model.ErrMessageNotFound) {
				return nil // nothing to broadcast about
			}
			return err
		}
		if _, err := s.publisher.Publish(ctx, queue.StreamRealtime, queue.NewMessageReadEvent(messageID, msg.ConversationID, deviceID)); err != nil {
			log.Printf("[InboxService] publish read receipt failed: %v", err)
		}
	}
	return nil
}
