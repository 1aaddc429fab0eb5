package handler

import (
	"net/http"
	"strings"

	"github.com/Manz2/chat-e2e/internal/httputil"
	"github.com/Manz2/chat-e2e/internal/service"
)

// AttachmentHandler presigns blob storage URLs for sealed attachments. The
// server never sees attachment plaintext; clients encrypt before upload.
type AttachmentHandler struct {
	attachmentService *service.AttachmentService
}

func NewAttachmentHandler(attachmentService *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// PresignUpload handles POST /attachments/presign-upload.
func (h *AttachmentHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	result, err := h.attachmentService.PresignUpload(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, "Failed to presign upload")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// PresignDownload handles GET /attachments/presign-download?key=...
func (h *AttachmentHandler) PresignDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" || !strings.HasPrefix(key, "attachments/") {
		httputil.WriteBadRequest(w, "Invalid attachment key")
		return
	}

	result, err := h.attachmentService.PresignDownload(r.Context(), key)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to presign download")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
