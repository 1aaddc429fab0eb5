package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Manz2/chat-e2e/internal/handler"
	"github.com/Manz2/chat-e2e/internal/httputil"
	authmw "github.com/Manz2/chat-e2e/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	EnrollmentHandler *handler.EnrollmentHandler
	PrekeyHandler     *handler.PrekeyHandler
	MessageHandler    *handler.MessageHandler
	InboxHandler      *handler.InboxHandler
	DeviceHandler     *handler.DeviceHandler
	AttachmentHandler *handler.AttachmentHandler
	JWTSecret         string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Enrollment runs before the device holds a certificate, so it is not
	// behind device auth. Start/finish carry their own proof of possession.
	r.Route("/enroll", func(r chi.Router) {
		r.Post("/start", cfg.EnrollmentHandler.Start)
		r.Post("/{deviceId}/finish", cfg.EnrollmentHandler.Finish)
	})

	// Bundle fetch is public to authenticated peers of any user; session
	// setup needs other people's device bundles.
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		// Own device management
		r.Get("/devices", cfg.DeviceHandler.List)
		r.Post("/devices/{deviceId}/revoke", cfg.EnrollmentHandler.Revoke)

		// Key material
		r.Put("/devices/{deviceId}/keys/signed-prekey", cfg.PrekeyHandler.UploadSignedPrekey)
		r.Post("/devices/{deviceId}/keys/one-time", cfg.PrekeyHandler.UploadOneTimePrekeys)
		r.Get("/devices/{deviceId}/keys/count", cfg.PrekeyHandler.CountOneTimePrekeys)
		r.Get("/devices/{deviceId}/bundle", cfg.PrekeyHandler.GetBundle)

		// Ciphertext relay
		r.Post("/conversations/{conversationId}/messages", cfg.MessageHandler.Send)
		r.Post("/conversations/{conversationId}/ck", cfg.MessageHandler.DistributeCK)

		// Per-device inbox
		r.Get("/inbox", cfg.InboxHandler.Fetch)
		r.Post("/inbox/ack", cfg.InboxHandler.Ack)
		r.Post("/inbox/read", cfg.InboxHandler.MarkRead)

		// Sealed attachments (direct-to-R2 uploads)
		if cfg.AttachmentHandler != nil {
			r.Post("/attachments/presign-upload", cfg.AttachmentHandler.PresignUpload)
			r.Get("/attachments/presign-download", cfg.AttachmentHandler.PresignDownload)
		}
	})

	return r
}
