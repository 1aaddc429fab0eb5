package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/httputil"
	"github.com/Manz2/chat-e2e/internal/service"
	"github.com/Manz2/chat-e2e/internal/transport/http/middleware"
)

// InboxHandler groups the per-device delivery inbox endpoints. The device
// is always the caller's own, taken from the principal.
type InboxHandler struct {
	inboxService *service.InboxService
}

func NewInboxHandler(inboxService *service.InboxService) *InboxHandler {
	return &InboxHandler{inboxService: inboxService}
}

type ackRequest struct {
	DeliveryIDs []uuid.UUID `json:"deliveryIds"`
}

type markReadRequest struct {
	MessageID uuid.UUID `json:"messageId"`
}

// Fetch handles GET /inbox?cursor=...&limit=...
func (h *InboxHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteBadRequest(w, "Invalid limit")
			return
		}
		limit = n
	}

	page, err := h.inboxService.Fetch(r.Context(), principal.DeviceID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to fetch inbox")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

// Ack handles POST /inbox/ack.
func (h *InboxHandler) Ack(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if len(req.DeliveryIDs) == 0 {
		httputil.WriteBadRequest(w, "deliveryIds is required")
		return
	}

	if err := h.inboxService.Ack(r.Context(), principal.DeviceID, req.DeliveryIDs); err != nil {
		httputil.WriteInternalError(w, "Failed to acknowledge deliveries")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MarkRead handles POST /inbox/read.
func (h *InboxHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.MessageID == uuid.Nil {
		httputil.WriteBadRequest(w, "messageId is required")
		return
	}

	if err := h.inboxService.MarkRead(r.Context(), principal.DeviceID, req.MessageID); err != nil {
		httputil.WriteInternalError(w, "Failed to mark message read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
