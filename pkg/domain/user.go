package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthMethod is the primary authentication mechanism of an account.
// Exactly one method is active at a time; switching happens only through
// account recovery or explicit re-enrollment.
type AuthMethod string

const (
	// AuthMethodPassword authenticates with an argon2id-hashed password.
	AuthMethodPassword AuthMethod = "password"
	// AuthMethodPasskey authenticates with a WebAuthn credential.
	AuthMethodPasskey AuthMethod = "passkey"
)

// Valid reports whether m is a known auth method.
func (m AuthMethod) Valid() bool {
	return m == AuthMethodPassword || m == AuthMethodPasskey
}

// User represents the account.
type User struct {
	ID                  uuid.UUID
	Email               string
	AuthMethod          AuthMethod
	Name                *string
	TOTPEnabled         bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// IsLocked returns true if the account is currently locked.
func (u *User) IsLocked() bool {
	if u.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*u.LockedUntil)
}

// UserPassword stores password credentials separately from user profile.
// A row exists iff the account's auth method is password.
type UserPassword struct {
	UserID            uuid.UUID
	PasswordHash      string
	PasswordUpdatedAt time.Time
}
