package domain

import (
	"time"

	"github.com/google/uuid"
)

// TOTPSecret holds the (encrypted) shared secret for the optional
// time-based second factor. The secret is pending until a valid code is
// presented; only then does the account's TOTPEnabled flag flip.
type TOTPSecret struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	SecretEncrypted string // AES-256-GCM encrypted base32 secret
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// TOTPEnrollment is returned when enrollment starts.
type TOTPEnrollment struct {
	Secret          string // base32 secret for manual entry
	ProvisioningURI string // otpauth:// URI
	QRCodeDataURI   string // QR code as data:image/png;base64,...
}
