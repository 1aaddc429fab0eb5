package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/httputil"
	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/service"
)

// PrekeyHandler groups the key upload and bundle fetch endpoints.
type PrekeyHandler struct {
	prekeyService *service.PrekeyService
}

func NewPrekeyHandler(prekeyService *service.PrekeyService) *PrekeyHandler {
	return &PrekeyHandler{prekeyService: prekeyService}
}

type uploadSignedPrekeyRequest struct {
	KeyID      int        `json:"keyId"`
	PublicKey  string     `json:"publicKey"`
	Signature  string     `json:"signature"`
	ValidUntil *time.Time `json:"validUntil,omitempty"`
}

type uploadOneTimePrekeysRequest struct {
	Prekeys []model.OneTimePrekeyUpload `json:"prekeys"`
}

// UploadSignedPrekey handles PUT /devices/{deviceId}/keys/signed-prekey.
func (h *PrekeyHandler) UploadSignedPrekey(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceId"))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid device id")
		return
	}

	var req uploadSignedPrekeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	err = h.prekeyService.UploadSignedPrekey(r.Context(), deviceID, req.KeyID, req.PublicKey, req.Signature, req.ValidUntil)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrDeviceNotFound):
			httputil.WriteNotFound(w, "Device not found")
		case errors.Is(err, model.ErrInvalidPrekey):
			httputil.WriteBadRequest(w, "Invalid prekey")
		default:
			httputil.WriteInternalError(w, "Failed to store signed prekey")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UploadOneTimePrekeys handles POST /devices/{deviceId}/keys/one-time.
func (h *PrekeyHandler) UploadOneTimePrekeys(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceId"))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid device id")
		return
	}

	var req uploadOneTimePrekeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if len(req.Prekeys) == 0 {
		httputil.WriteBadRequest(w, "At least one prekey is required")
		return
	}

	count, err := h.prekeyService.UploadOneTimePrekeys(r.Context(), deviceID, req.Prekeys)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrDeviceNotFound):
			httputil.WriteNotFound(w, "Device not found")
		case errors.Is(err, model.ErrInvalidPrekey):
			httputil.WriteBadRequest(w, "Invalid prekey")
		default:
			httputil.WriteInternalError(w, "Failed to store one-time prekeys")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{"stored": count})
}

// CountOneTimePrekeys handles GET /devices/{deviceId}/keys/count.
func (h *PrekeyHandler) CountOneTimePrekeys(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceId"))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid device id")
		return
	}

	count, err := h.prekeyService.CountAvailable(r.Context(), deviceID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to count prekeys")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"available": count})
}

// GetBundle handles GET /devices/{deviceId}/bundle. Claiming the one-time
// prekey is a side effect, so this endpoint is not safe to retry blindly.
func (h *PrekeyHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceId"))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid device id")
		return
	}

	bundle, err := h.prekeyService.BuildBundle(r.Context(), deviceID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrDeviceNotFound):
			httputil.WriteNotFound(w, "Device not found")
		case errors.Is(err, model.ErrDeviceNotEnrolled):
			httputil.WriteConflict(w, "Device has not completed enrollment")
		case errors.Is(err, model.ErrNoSignedPrekey):
			httputil.WriteConflict(w, "Device has no signed prekey")
		default:
			httputil.WriteInternalError(w, "Failed to build key bundle")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, bundle)
}
