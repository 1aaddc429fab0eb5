package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/httputil"
	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/service"
	"github.com/Manz2/chat-e2e/internal/transport/http/middleware"
)

// MessageHandler groups the ciphertext relay endpoints.
type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// Send handles POST /conversations/{conversationId}/messages.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid conversation id")
		return
	}

	var req service.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	result, err := h.messageService.Send(r.Context(), conversationID, principal.UserID, principal.DeviceID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrConversationNotFound):
			httputil.WriteNotFound(w, "Conversation not found")
		case errors.Is(err, model.ErrNotConversationMember):
			httputil.WriteForbidden(w, "Not a member of this conversation")
		case errors.Is(err, model.ErrDeviceNotFound):
			httputil.WriteForbidden(w, "Sending device is not enrolled")
		case errors.Is(err, model.ErrInvalidCiphertext):
			httputil.WriteBadRequest(w, "Invalid ciphertext")
		default:
			httputil.WriteInternalError(w, "Failed to send message")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, result)
}

// DistributeCK handles POST /conversations/{conversationId}/ck.
func (h *MessageHandler) DistributeCK(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetPrincipal(r.Context()); !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid conversation id")
		return
	}

	var req service.DistributeCKRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	result, err := h.messageService.DistributeCK(r.Context(), conversationID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrConversationNotFound):
			httputil.WriteNotFound(w, "Conversation not found")
		case errors.Is(err, model.ErrInvalidCiphertext):
			httputil.WriteBadRequest(w, "Invalid sealed key material")
		default:
			httputil.WriteInternalError(w, "Failed to distribute conversation key")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, result)
}
