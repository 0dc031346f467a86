package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CeremonyKind distinguishes registration from authentication ceremonies.
type CeremonyKind string

const (
	CeremonyRegistration   CeremonyKind = "registration"
	CeremonyAuthentication CeremonyKind = "authentication"
)

// Ceremony is the server-side half of an in-flight WebAuthn ceremony: the
// issued challenge and its binding, stored as a row so any instance can
// verify the finish request. Consumable exactly once.
type Ceremony struct {
	ID          uuid.UUID
	Email       string
	Kind        CeremonyKind
	SessionData json.RawMessage
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// IsValid reports whether the ceremony can still be finished.
func (c *Ceremony) IsValid() bool {
	return c.ConsumedAt == nil && time.Now().Before(c.ExpiresAt)
}
