package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStartRequest is the request body for POST /enroll/start.
type EnrollmentStartRequest struct {
	UserHandle string `json:"userHandle"`
}

// EnrollmentStartResponse carries the challenge the device must sign over.
type EnrollmentStartResponse struct {
	DeviceID  uuid.UUID `json:"deviceId"`
	Nonce     string    `json:"nonce"` // base64
	ExpiresAt time.Time `json:"expiresAt"`
}

// EnrollmentFinishRequest is the request body for POST /enroll/{deviceId}/finish.
// All key and signature fields are standard base64.
type EnrollmentFinishRequest struct {
	IdentityKey string `json:"identityKey"` // Ed25519 verification key (SPKI)
	KxKey       string `json:"kxKey"`       // X25519 key-exchange key
	BindingSig  string `json:"bindingSig"`  // sig over SHA-256("bind:" || kxKey)
	Proof       string `json:"proof"`       // sig over SHA-256("enroll:" || deviceId || nonce || ik || kx)
	Platform    string `json:"platform,omitempty"`
	DeviceName  string `json:"deviceName,omitempty"`
	PqKemKey    string `json:"pqKemKey,omitempty"` // opaque, stored as-is
}

// EnrollmentFinishResponse returns the certificate when the deployment
// issues one.
type EnrollmentFinishResponse struct {
	Certificate *DeviceCertificate `json:"certificate,omitempty"`
	ExpiresAt   *time.Time         `json:"certExpiresAt,omitempty"`
}
