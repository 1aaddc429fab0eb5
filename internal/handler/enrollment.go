package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/httputil"
	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/service"
	"github.com/Manz2/chat-e2e/internal/transport/http/middleware"
)

// EnrollmentHandler groups the device enrollment endpoints.
type EnrollmentHandler struct {
	enrollmentService *service.EnrollmentService
}

func NewEnrollmentHandler(enrollmentService *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollmentService: enrollmentService}
}

// Start handles POST /enroll/start.
func (h *EnrollmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req model.EnrollmentStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserHandle) == "" {
		httputil.WriteBadRequest(w, "userHandle is required")
		return
	}

	resp, err := h.enrollmentService.Start(r.Context(), req.UserHandle)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteNotFound(w, "User not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to start enrollment")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Finish handles POST /enroll/{deviceId}/finish.
func (h *EnrollmentHandler) Finish(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceId"))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid device id")
		return
	}

	var req model.EnrollmentFinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	resp, err := h.enrollmentService.Finish(r.Context(), deviceID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrDeviceNotFound):
			httputil.WriteNotFound(w, "Device not found")
		case errors.Is(err, model.ErrChallengeMissing), errors.Is(err, model.ErrChallengeExpired):
			httputil.WriteBadRequestWithCode(w, httputil.ErrCodeChallengeGone, "Enrollment challenge missing or expired")
		case errors.Is(err, model.ErrInvalidKeyEncoding):
			httputil.WriteBadRequest(w, "Invalid key encoding")
		case errors.Is(err, model.ErrInvalidBindingSig), errors.Is(err, model.ErrInvalidPossessionProof):
			httputil.WriteBadRequestWithCode(w, httputil.ErrCodeInvalidSignature, "Signature verification failed")
		case errors.Is(err, model.ErrInvalidPlatform):
			httputil.WriteBadRequest(w, "Invalid platform")
		default:
			httputil.WriteInternalError(w, "Failed to finish enrollment")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Revoke handles POST /devices/{deviceId}/revoke. The owner handle comes
// from the verified principal, never from the request body.
func (h *EnrollmentHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceId"))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid device id")
		return
	}

	if err := h.enrollmentService.Revoke(r.Context(), principal.Handle, deviceID); err != nil {
		switch {
		case errors.Is(err, model.ErrDeviceNotFound):
			httputil.WriteNotFound(w, "Device not found")
		case errors.Is(err, model.ErrNotDeviceOwner):
			httputil.WriteForbidden(w, "Device not owned by caller")
		default:
			httputil.WriteInternalError(w, "Failed to revoke device")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
