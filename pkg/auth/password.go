package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

// PasswordService handles password-method accounts: registration,
// verification, and password changes.
type PasswordService struct {
	users  UserStore
	policy *PasswordPolicy
}

// NewPasswordService creates a new password service.
func NewPasswordService(users UserStore, policy *PasswordPolicy) *PasswordService {
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	return &PasswordService{users: users, policy: policy}
}

// Policy returns the active password policy.
func (s *PasswordService) Policy() *PasswordPolicy {
	return s.policy
}

// Register creates a new account with the password method.
func (s *PasswordService) Register(ctx context.Context, email, password, passwordConfirm string, name *string) (*domain.User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	if password != passwordConfirm {
		return nil, domain.ErrPasswordMismatch
	}
	if err := s.policy.ValidatePassword(password); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrUserAlreadyExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:         uuid.New(),
		Email:      email,
		AuthMethod: domain.AuthMethodPassword,
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, user, &hash); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies email and password, returning the user on success.
// An unknown email and a wrong password are indistinguishable to the
// caller: both return ErrInvalidCredentials. A password-login attempt
// against a passkey account returns ErrWrongAuthMethod (the client already
// learns the method from CheckAuthMethod, so this is not a new leak).
// Implements lockout after repeated failures.
func (s *PasswordService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.AuthMethod != domain.AuthMethodPassword {
		return nil, domain.ErrWrongAuthMethod
	}
	if user.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	hash, err := s.users.GetPasswordHash(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(password, hash) {
		_ = s.users.IncrementFailedLoginAttempts(ctx, user.ID, lockoutDuration, maxFailedAttempts)
		return nil, domain.ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = s.users.ResetFailedLoginAttempts(ctx, user.ID)
	}
	return user, nil
}

// ChangePassword changes the password after verifying the current one.
// Only meaningful for password-method accounts.
func (s *PasswordService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, newPasswordConfirm string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.AuthMethod != domain.AuthMethodPassword {
		return domain.ErrWrongAuthMethod
	}

	hash, err := s.users.GetPasswordHash(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(oldPassword, hash) {
		return domain.ErrInvalidCredentials
	}

	if newPassword != newPasswordConfirm {
		return domain.ErrPasswordMismatch
	}
	if err := s.policy.ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.SetPasswordHash(ctx, userID, newHash)
}
