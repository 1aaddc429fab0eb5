package handler

import (
	"errors"
	"net/http"

	"github.com/Manz2/chat-e2e/internal/httputil"
	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/service"
	"github.com/Manz2/chat-e2e/internal/transport/http/middleware"
)

// DeviceHandler exposes the caller's own device roster.
type DeviceHandler struct {
	deviceService *service.DeviceService
}

func NewDeviceHandler(deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

// List handles GET /devices.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	devices, err := h.deviceService.ListDevices(r.Context(), principal.Handle)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteNotFound(w, "User not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to list devices")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}
