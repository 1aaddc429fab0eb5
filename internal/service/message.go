package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/queue"
	"github.com/Manz2/chat-e2e/internal/repository"
)

// SendMessageRequest carries one sealed message from a sender device.
// Epoch and counter come from the client's ratchet state and pass through
// opaque; the server never interprets them beyond copying into headers.
type SendMessageRequest struct {
	ContentType string `json:"contentType"`
	Epoch       int64  `json:"epoch"`
	Counter     int64  `json:"counter"`
	Ciphertext  string `json:"ciphertext"` // base64
}

// DistributeCKRequest carries per-device sealed conversation-key material.
type DistributeCKRequest struct {
	Epoch           int64             `json:"epoch"`
	SealedForDevice map[string]string `json:"sealedForDevice"` // deviceId -> base64 ciphertext
	FromDeviceID    *uuid.UUID        `json:"fromDeviceId"`
	Signature       string            `json:"signature"`
}

// MessageService turns one logical sealed message into per-device delivery
// rows. It never sees plaintext; every ciphertext is opaque bytes.
type MessageService struct {
	convRepo    repository.ConversationRepository
	deviceRepo  repository.DeviceRepository
	messageRepo repository.MessageRepository
	publisher   queue.Publisher // nil when no realtime stream is wired
}

func NewMessageService(convRepo repository.ConversationRepository, deviceRepo repository.DeviceRepository, messageRepo repository.MessageRepository, publisher queue.Publisher) *MessageService {
	return &MessageService{
		convRepo:    convRepo,
		deviceRepo:  deviceRepo,
		messageRepo: messageRepo,
		publisher:   publisher,
	}
}

// Send validates the sender, then creates the message core and its full
// fan-out in one transaction: identical ciphertext to every unrevoked member
// device except the sender's own.
func (s *MessageService) Send(ctx context.Context, conversationID, senderUserID, senderDeviceID uuid.UUID, req *SendMessageRequest) (*model.SendResult, error) {
	exists, err := s.convRepo.Exists(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrConversationNotFound
	}

	member, err := s.convRepo.IsMember(ctx, conversationID, senderUserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, model.ErrNotConversationMember
	}

	if _, err := s.deviceRepo.GetByID(ctx, senderDeviceID); err != nil {
		return nil, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		return nil, model.ErrInvalidCiphertext
	}

	header, err := json.Marshal(map[string]interface{}{
		"type":         "text",
		"epoch":        req.Epoch,
		"counter":      req.Counter,
		"content_type": req.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message header: %w", err)
	}
	deliveryHeader, err := json.Marshal(map[string]interface{}{
		"epoch":   req.Epoch,
		"counter": req.Counter,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal delivery header: %w", err)
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       &senderUserID,
		ContentType:    req.ContentType,
		Header:         string(header),
	}
	deliveries, err := s.messageRepo.CreateWithFanout(ctx, msg, senderDeviceID, string(deliveryHeader), ciphertext)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, queue.NewMessageSentEvent(msg.ID, conversationID, senderUserID, senderDeviceID, deliveries))

	return &model.SendResult{
		MessageID:  msg.ID,
		CreatedAt:  msg.CreatedAt,
		Deliveries: deliveries,
	}, nil
}

// DistributeCK fans out per-device sealed conversation keys as a control
// message. Payloads addressed to devices that are not current members of the
// conversation are skipped silently and simply don't count.
//
// The accompanying signature is recorded in the control header but not
// verified here; authenticating conversation-key distributions is the
// clients' job, end to end.
func (s *MessageService) DistributeCK(ctx context.Context, conversationID uuid.UUID, req *DistributeCKRequest) (*model.SendResult, error) {
	exists, err := s.convRepo.Exists(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrConversationNotFound
	}

	sealed := make(map[uuid.UUID][]byte, len(req.SealedForDevice))
	for rawID, ctB64 := range req.SealedForDevice {
		deviceID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, model.ErrInvalidCiphertext
		}
		ct, err := base64.StdEncoding.DecodeString(ctB64)
		if err != nil {
			return nil, model.ErrInvalidCiphertext
		}
		sealed[deviceID] = ct
	}

	var fromDevice *string
	if req.FromDeviceID != nil {
		v := req.FromDeviceID.String()
		fromDevice = &v
	}
	header, err := json.Marshal(map[string]interface{}{
		"type":        "ck_distribute",
		"epoch":       req.Epoch,
		"from_device": fromDevice,
		"sig":         req.Signature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal control header: %w", err)
	}
	deliveryHeader, err := json.Marshal(map[string]interface{}{
		"epoch":   req.Epoch,
		"counter": 0,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal delivery header: %w", err)
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       nil, // control origin
		ContentType:    model.ContentTypeCKDistribute,
		Header:         string(header),
	}
	deliveries, err := s.messageRepo.CreateControl(ctx, msg, sealed, string(deliveryHeader))
	if err != nil {
		return nil, err
	}

	return &model.SendResult{
		MessageID:  msg.ID,
		CreatedAt:  msg.CreatedAt,
		Deliveries: deliveries,
	}, nil
}

func (s *MessageService) publish(ctx context.Context, event queue.RealtimeEvent) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, queue.StreamRealtime, event); err != nil {
		// Delivery rows are the source of truth; a lost realtime event only
		// delays a socket push until the next inbox poll.
		log.Printf("[MessageService] publish %s failed: %v", event.Type, err)
	}
}
