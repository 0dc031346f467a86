package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

const (
	recoveryTokenLen = 32

	// DefaultRecoveryTokenTTL bounds how long a recovery link stays valid.
	DefaultRecoveryTokenTTL = time.Hour
)

// RecoveryMessage is the response to every recovery request, whether or
// not the account exists. Keep it byte-identical across both paths.
const RecoveryMessage = "If an account exists with this email, a recovery link has been sent."

// RecoveryMailer delivers the recovery link. Delivery is fire-and-forget:
// failures are logged, never surfaced to the requester.
type RecoveryMailer interface {
	SendRecoveryEmail(to, recoveryURL string) error
}

// RecoveryConfig contains configuration for the recovery service.
type RecoveryConfig struct {
	TokenTTL   time.Duration
	AppBaseURL string
}

// RecoveryService issues and redeems single-use recovery tokens that let
// an account switch its authentication method without the original
// credential.
type RecoveryService struct {
	config RecoveryConfig
	logger *slog.Logger
	users  UserStore
	tokens RecoveryTokenStore
	policy *PasswordPolicy
	mailer RecoveryMailer // nil when SMTP is not configured
}

// NewRecoveryService creates a new recovery service.
func NewRecoveryService(config RecoveryConfig, logger *slog.Logger, users UserStore, tokens RecoveryTokenStore, policy *PasswordPolicy, mailer RecoveryMailer) *RecoveryService {
	if config.TokenTTL == 0 {
		config.TokenTTL = DefaultRecoveryTokenTTL
	}
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	return &RecoveryService{
		config: config,
		logger: logger,
		users:  users,
		tokens: tokens,
		policy: policy,
		mailer: mailer,
	}
}

// Request starts recovery for an email. The caller-visible outcome is
// identical whether or not the account exists; only the side effects
// differ. When no mailer is configured the raw token is returned directly
// to the caller; a development shortcut, never for production.
func (s *RecoveryService) Request(ctx context.Context, email string) (devToken string, err error) {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	rawToken, err := GenerateToken(recoveryTokenLen)
	if err != nil {
		return "", err
	}

	// A new request supersedes any outstanding token for the account.
	if err := s.tokens.RevokeActive(ctx, user.ID); err != nil {
		return "", err
	}

	now := time.Now()
	token := &domain.RecoveryToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(rawToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TokenTTL),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", err
	}

	if s.mailer == nil {
		return rawToken, nil
	}

	recoveryURL := fmt.Sprintf("%s/account-recovery/confirm?token=%s", s.config.AppBaseURL, rawToken)
	go func() {
		if err := s.mailer.SendRecoveryEmail(user.Email, recoveryURL); err != nil {
			s.logger.Error("failed to send recovery email", "error", err, "user_id", user.ID)
		}
	}()
	return "", nil
}

// Confirm redeems a recovery token and switches the account's
// authentication method. Redemption is atomic: the token is consumed
// exactly once, and the method switch clears the prior method's material.
// Switching to passkey leaves the account credential-less until the
// registration ceremony re-enrolls one.
func (s *RecoveryService) Confirm(ctx context.Context, rawToken string, newMethod domain.AuthMethod, password, passwordConfirm string) (*domain.User, error) {
	if !newMethod.Valid() {
		return nil, domain.ErrWrongAuthMethod
	}

	token, err := s.tokens.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if token.ConsumedAt != nil {
		return nil, domain.ErrRecoveryTokenConsumed
	}
	if time.Now().After(token.ExpiresAt) {
		return nil, domain.ErrRecoveryTokenExpired
	}

	var passwordHash *string
	if newMethod == domain.AuthMethodPassword {
		if password != passwordConfirm {
			return nil, domain.ErrPasswordMismatch
		}
		if err := s.policy.ValidatePassword(password); err != nil {
			return nil, err
		}
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		passwordHash = &hash
	}

	// Consume before mutating; a concurrent duplicate redemption loses
	// here and never reaches the method switch.
	if err := s.tokens.MarkConsumed(ctx, token.ID); err != nil {
		return nil, err
	}
	if err := s.users.SetAuthMethod(ctx, token.UserID, newMethod, passwordHash); err != nil {
		return nil, err
	}

	return s.users.GetByID(ctx, token.UserID)
}
