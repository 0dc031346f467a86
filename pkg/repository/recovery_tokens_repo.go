package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// RecoveryTokensRepository handles recovery token persistence.
type RecoveryTokensRepository struct {
	db *sql.DB
}

// NewRecoveryTokensRepository creates a new recovery tokens repository.
func NewRecoveryTokensRepository(db *sql.DB) *RecoveryTokensRepository {
	return &RecoveryTokensRepository{db: db}
}

// Create stores a new recovery token.
func (r *RecoveryTokensRepository) Create(ctx context.Context, token *domain.RecoveryToken) error {
	query := `
		INSERT INTO recovery_tokens (id, user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt,
	)
	return err
}

// GetByTokenHash retrieves a recovery token by its hash.
func (r *RecoveryTokensRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RecoveryToken, error) {
	query := `
		SELECT id, user_id, token_hash, created_at, expires_at, consumed_at
		FROM recovery_tokens
		WHERE token_hash = $1
	`
	token := &domain.RecoveryToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID, &token.UserID, &token.TokenHash,
		&token.CreatedAt, &token.ExpiresAt, &token.ConsumedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecoveryTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// MarkConsumed marks a recovery token as consumed. At most one caller
// succeeds; a concurrent duplicate redemption fails with
// ErrRecoveryTokenConsumed.
func (r *RecoveryTokensRepository) MarkConsumed(ctx context.Context, tokenID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE recovery_tokens
		SET consumed_at = NOW()
		WHERE id = $1 AND consumed_at IS NULL
	`, tokenID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrRecoveryTokenConsumed
	}
	return nil
}

// RevokeActive marks all unconsumed, unexpired tokens for a user as
// consumed. Called when a new token is issued.
func (r *RecoveryTokensRepository) RevokeActive(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recovery_tokens
		SET consumed_at = NOW()
		WHERE user_id = $1 AND consumed_at IS NULL AND expires_at > NOW()
	`, userID)
	return err
}

// DeleteExpired purges tokens past their expiry.
func (r *RecoveryTokensRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM recovery_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
