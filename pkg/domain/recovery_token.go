package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecoveryToken lets an account switch its authentication method without
// the original credential. Single-use, time-limited, stored hashed.
type RecoveryToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsValid reports whether the token can still be redeemed.
func (t *RecoveryToken) IsValid() bool {
	return t.ConsumedAt == nil && time.Now().Before(t.ExpiresAt)
}
