package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// UsersRepository handles account persistence, including the atomic
// authentication-method switch.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

const userColumns = `id, email, auth_method, name, totp_enabled, failed_login_attempts,
       locked_until, last_login_at, created_at, updated_at, deleted_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.AuthMethod, &user.Name, &user.TOTPEnabled,
		&user.FailedLoginAttempts, &user.LockedUntil, &user.LastLoginAt,
		&user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create creates a new user. passwordHash must be non-nil iff the auth
// method is password.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User, passwordHash *string) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		return r.CreateTx(ctx, tx, user, passwordHash)
	})
}

// CreateTx creates a new user within a transaction.
func (r *UsersRepository) CreateTx(ctx context.Context, q Querier, user *domain.User, passwordHash *string) error {
	query := `
		INSERT INTO users (id, email, auth_method, name, totp_enabled, created_at, updated_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7)
	`
	_, err := q.ExecContext(ctx, query,
		user.ID, user.Email, user.AuthMethod, user.Name, user.TOTPEnabled,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if user.AuthMethod == domain.AuthMethodPassword {
		if passwordHash == nil {
			return errors.New("password hash required for password method")
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO user_passwords (user_id, password_hash, password_updated_at)
			VALUES ($1, $2, $3)
		`, user.ID, *passwordHash, time.Now())
	}
	return err
}

// CreatePasskeyUser commits a new passkey account with its first
// credential in one transaction.
func (r *UsersRepository) CreatePasskeyUser(ctx context.Context, user *domain.User, cred *domain.PasskeyCredential) error {
	creds := NewPasskeyCredentialsRepository(r.db)
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.CreateTx(ctx, tx, user, nil); err != nil {
			return err
		}
		return creds.CreateTx(ctx, tx, cred)
	})
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = LOWER($1) AND deleted_at IS NULL`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// ExistsByEmail checks if a user exists by email.
func (r *UsersRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = LOWER($1) AND deleted_at IS NULL)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// SetAuthMethod atomically switches the account's authentication method:
// it installs the new material and clears the material of the prior
// method. The account row is locked for the duration of the transaction
// so a concurrent second switch serializes rather than overwriting.
func (r *UsersRepository) SetAuthMethod(ctx context.Context, userID uuid.UUID, method domain.AuthMethod, passwordHash *string) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		var current domain.AuthMethod
		err := tx.QueryRowContext(ctx, `
			SELECT auth_method FROM users
			WHERE id = $1 AND deleted_at IS NULL
			FOR UPDATE
		`, userID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		switch method {
		case domain.AuthMethodPassword:
			if passwordHash == nil {
				return errors.New("password hash required for password method")
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO user_passwords (user_id, password_hash, password_updated_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (user_id) DO UPDATE
				SET password_hash = EXCLUDED.password_hash, password_updated_at = NOW()
			`, userID, *passwordHash)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `DELETE FROM passkey_credentials WHERE user_id = $1`, userID)
			if err != nil {
				return err
			}
		case domain.AuthMethodPasskey:
			// Credentials are enrolled through the registration ceremony;
			// here we only clear the old password material.
			_, err = tx.ExecContext(ctx, `DELETE FROM user_passwords WHERE user_id = $1`, userID)
			if err != nil {
				return err
			}
		default:
			return domain.ErrWrongAuthMethod
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET auth_method = $2, updated_at = NOW()
			WHERE id = $1
		`, userID, method)
		return err
	})
}

// GetPasswordHash returns the stored password hash for the user.
func (r *UsersRepository) GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT password_hash FROM user_passwords WHERE user_id = $1`, userID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrUserNotFound
	}
	return hash, err
}

// SetPasswordHash replaces the stored password hash for the user.
func (r *UsersRepository) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_passwords
		SET password_hash = $2, password_updated_at = NOW()
		WHERE user_id = $1
	`, userID, hash)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetTOTPEnabled updates the TOTP enabled flag.
func (r *UsersRepository) SetTOTPEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET totp_enabled = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, userID, enabled)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdateName updates the user's display name.
func (r *UsersRepository) UpdateName(ctx context.Context, userID uuid.UUID, name *string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET name = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, userID, name)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin records a successful authentication.
func (r *UsersRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, userID)
	return err
}

// IncrementFailedLoginAttempts increments the failed login attempts counter
// and locks the account when the threshold is reached.
func (r *UsersRepository) IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, userID, maxAttempts, lockoutDuration.Seconds())
	return err
}

// ResetFailedLoginAttempts resets the failed login attempts and clears lockout.
func (r *UsersRepository) ResetFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, userID)
	return err
}
