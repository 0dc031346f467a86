package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// TOTPSecretsRepository handles TOTP secret persistence.
type TOTPSecretsRepository struct {
	db *sql.DB
}

// NewTOTPSecretsRepository creates a new TOTP secrets repository.
func NewTOTPSecretsRepository(db *sql.DB) *TOTPSecretsRepository {
	return &TOTPSecretsRepository{db: db}
}

// Upsert stores the secret for a user, replacing any pending one.
// Re-enrolling before verification overwrites the previous secret.
func (r *TOTPSecretsRepository) Upsert(ctx context.Context, secret *domain.TOTPSecret) error {
	query := `
		INSERT INTO totp_secrets (id, user_id, secret_encrypted, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET secret_encrypted = EXCLUDED.secret_encrypted,
		    created_at = EXCLUDED.created_at,
		    last_used_at = NULL
	`
	_, err := r.db.ExecContext(ctx, query,
		secret.ID, secret.UserID, secret.SecretEncrypted, secret.CreatedAt,
	)
	return err
}

// GetByUserID retrieves the secret for a user.
func (r *TOTPSecretsRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.TOTPSecret, error) {
	query := `
		SELECT id, user_id, secret_encrypted, created_at, last_used_at
		FROM totp_secrets
		WHERE user_id = $1
	`
	secret := &domain.TOTPSecret{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&secret.ID, &secret.UserID, &secret.SecretEncrypted,
		&secret.CreatedAt, &secret.LastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTOTPNotEnrolled
	}
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// UpdateLastUsed records a successful code verification.
func (r *TOTPSecretsRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE totp_secrets SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}

// DeleteByUserID removes the secret for a user.
func (r *TOTPSecretsRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM totp_secrets WHERE user_id = $1`, userID)
	return err
}
