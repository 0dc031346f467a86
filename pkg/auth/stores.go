package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// The services in this package depend on these narrow store interfaces so
// the repositories remain swappable and the protocol logic is testable
// without a database. pkg/repository provides the Postgres
// implementations.

// UserStore persists accounts and their method-specific material.
type UserStore interface {
	Create(ctx context.Context, user *domain.User, passwordHash *string) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// CreatePasskeyUser commits a new passkey account together with its
	// first credential in one transaction, so no committed account ever
	// has the passkey method and zero credentials (outside the recovery
	// re-enrollment window).
	CreatePasskeyUser(ctx context.Context, user *domain.User, cred *domain.PasskeyCredential) error

	// SetAuthMethod atomically switches the active method and clears the
	// prior method's material. Concurrent switches serialize; the loser
	// observes the winner's state, never a blend.
	SetAuthMethod(ctx context.Context, userID uuid.UUID, method domain.AuthMethod, passwordHash *string) error

	GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error)
	SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error
	SetTOTPEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error
	ResetFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error
}

// CredentialStore persists WebAuthn credentials.
type CredentialStore interface {
	Create(ctx context.Context, cred *domain.PasskeyCredential) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.PasskeyCredential, error)
	GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error)
	ExistsByCredentialID(ctx context.Context, credentialID []byte) (bool, error)

	// UpdateSignCount enforces strict counter monotonicity, returning
	// domain.ErrCloneDetected on regression (persistent zero excepted).
	UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error
}

// CeremonyStore persists in-flight WebAuthn ceremonies.
type CeremonyStore interface {
	Create(ctx context.Context, c *domain.Ceremony) error

	// Consume returns the ceremony and invalidates it in one step.
	// Exactly one caller can succeed per ceremony.
	Consume(ctx context.Context, id uuid.UUID, kind domain.CeremonyKind) (*domain.Ceremony, error)
}

// RecoveryTokenStore persists single-use recovery tokens.
type RecoveryTokenStore interface {
	Create(ctx context.Context, token *domain.RecoveryToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RecoveryToken, error)
	MarkConsumed(ctx context.Context, tokenID uuid.UUID) error
	RevokeActive(ctx context.Context, userID uuid.UUID) error
}

// TOTPStore persists (encrypted) TOTP secrets.
type TOTPStore interface {
	Upsert(ctx context.Context, secret *domain.TOTPSecret) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.TOTPSecret, error)
	UpdateLastUsed(ctx context.Context, id uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

// SessionStore persists refresh-token-backed sessions.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	RotateToken(ctx context.Context, sessionID uuid.UUID, oldHash, newHash string) error
	Revoke(ctx context.Context, sessionID uuid.UUID) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error
	UpdateLastSeen(ctx context.Context, sessionID uuid.UUID) error
}
