package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// CeremoniesRepository persists in-flight WebAuthn ceremonies so any
// instance can verify a finish request (no process-local challenge maps).
type CeremoniesRepository struct {
	db *sql.DB
}

// NewCeremoniesRepository creates a new ceremonies repository.
func NewCeremoniesRepository(db *sql.DB) *CeremoniesRepository {
	return &CeremoniesRepository{db: db}
}

// Create stores a new ceremony.
func (r *CeremoniesRepository) Create(ctx context.Context, c *domain.Ceremony) error {
	query := `
		INSERT INTO ceremonies (id, email, kind, session_data, created_at, expires_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Email, c.Kind, c.SessionData, c.CreatedAt, c.ExpiresAt,
	)
	return err
}

// Consume atomically marks the ceremony consumed and returns it. A second
// consume of the same ceremony fails, which is the entire replay defense:
// two concurrent submissions of the same response cannot both succeed.
func (r *CeremoniesRepository) Consume(ctx context.Context, id uuid.UUID, kind domain.CeremonyKind) (*domain.Ceremony, error) {
	query := `
		UPDATE ceremonies
		SET consumed_at = NOW()
		WHERE id = $1 AND kind = $2 AND consumed_at IS NULL AND expires_at > NOW()
		RETURNING id, email, kind, session_data, created_at, expires_at, consumed_at
	`
	c := &domain.Ceremony{}
	err := r.db.QueryRowContext(ctx, query, id, kind).Scan(
		&c.ID, &c.Email, &c.Kind, &c.SessionData, &c.CreatedAt, &c.ExpiresAt, &c.ConsumedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, id, kind)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// classifyMiss distinguishes expired/consumed/missing for the error
// taxonomy. The consume itself already failed; this is diagnosis only.
func (r *CeremoniesRepository) classifyMiss(ctx context.Context, id uuid.UUID, kind domain.CeremonyKind) error {
	var consumed sql.NullTime
	var expired bool
	err := r.db.QueryRowContext(ctx, `
		SELECT consumed_at, expires_at <= NOW() FROM ceremonies WHERE id = $1 AND kind = $2
	`, id, kind).Scan(&consumed, &expired)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrCeremonyNotFound
	}
	if err != nil {
		return err
	}
	if consumed.Valid {
		return domain.ErrCeremonyConsumed
	}
	if expired {
		return domain.ErrCeremonyExpired
	}
	return domain.ErrCeremonyNotFound
}

// DeleteExpired purges ceremonies past their expiry. Expiry is already
// enforced at consume time; this keeps the table from growing.
func (r *CeremoniesRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ceremonies WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
