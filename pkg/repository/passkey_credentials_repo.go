package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/giterdone/giterdone/pkg/domain"
)

// PasskeyCredentialsRepository handles WebAuthn credential persistence.
type PasskeyCredentialsRepository struct {
	db *sql.DB
}

// NewPasskeyCredentialsRepository creates a new passkey credentials repository.
func NewPasskeyCredentialsRepository(db *sql.DB) *PasskeyCredentialsRepository {
	return &PasskeyCredentialsRepository{db: db}
}

const credentialColumns = `id, user_id, credential_id, public_key, attestation_type, transports,
       aaguid, sign_count, user_present, user_verified, backup_eligible, backup_state,
       created_at, last_used_at`

func scanCredential(scan func(dest ...any) error) (*domain.PasskeyCredential, error) {
	cred := &domain.PasskeyCredential{}
	err := scan(
		&cred.ID, &cred.UserID, &cred.CredentialID, &cred.PublicKey,
		&cred.AttestationType, pq.Array(&cred.Transports), &cred.AAGUID,
		&cred.SignCount, &cred.UserPresent, &cred.UserVerified,
		&cred.BackupEligible, &cred.BackupState, &cred.CreatedAt, &cred.LastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Create stores a new credential.
func (r *PasskeyCredentialsRepository) Create(ctx context.Context, cred *domain.PasskeyCredential) error {
	return r.CreateTx(ctx, r.db, cred)
}

// CreateTx stores a new credential within a transaction.
func (r *PasskeyCredentialsRepository) CreateTx(ctx context.Context, q Querier, cred *domain.PasskeyCredential) error {
	query := `
		INSERT INTO passkey_credentials
			(id, user_id, credential_id, public_key, attestation_type, transports, aaguid,
			 sign_count, user_present, user_verified, backup_eligible, backup_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := q.ExecContext(ctx, query,
		cred.ID, cred.UserID, cred.CredentialID, cred.PublicKey, cred.AttestationType,
		pq.Array(cred.Transports), cred.AAGUID, cred.SignCount,
		cred.UserPresent, cred.UserVerified, cred.BackupEligible, cred.BackupState,
		cred.CreatedAt,
	)
	return err
}

// ListByUserID retrieves all credentials registered to a user.
func (r *PasskeyCredentialsRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.PasskeyCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM passkey_credentials WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*domain.PasskeyCredential
	for rows.Next() {
		cred, err := scanCredential(rows.Scan)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// GetByCredentialID retrieves a credential by its WebAuthn credential id.
func (r *PasskeyCredentialsRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM passkey_credentials WHERE credential_id = $1`
	return scanCredential(r.db.QueryRowContext(ctx, query, credentialID).Scan)
}

// ExistsByCredentialID checks whether a credential id is registered to any
// account. Used to reject duplicate registrations across accounts.
func (r *PasskeyCredentialsRepository) ExistsByCredentialID(ctx context.Context, credentialID []byte) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM passkey_credentials WHERE credential_id = $1)`, credentialID,
	).Scan(&exists)
	return exists, err
}

// UpdateSignCount advances the signature counter. The counter must be
// strictly increasing; a stale or replayed value fails with
// ErrCloneDetected. The exception is a persistent zero: some
// authenticators never increment, so 0 -> 0 is accepted as non-failing.
func (r *PasskeyCredentialsRepository) UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error {
	query := `
		UPDATE passkey_credentials
		SET sign_count = $2, last_used_at = NOW()
		WHERE credential_id = $1
		  AND (sign_count < $2 OR (sign_count = 0 AND $2 = 0))
	`
	result, err := r.db.ExecContext(ctx, query, credentialID, int64(newCount))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := r.ExistsByCredentialID(ctx, credentialID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrCredentialNotFound
		}
		return domain.ErrCloneDetected
	}
	return nil
}
