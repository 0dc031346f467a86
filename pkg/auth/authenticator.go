package auth

import (
	"context"
	"errors"
	"io"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// Authenticator is the front door for every authentication flow. It
// composes the per-method services and is the only component that issues
// sessions, so the step-up and method checks cannot be bypassed.
type Authenticator struct {
	passwords *PasswordService
	passkeys  *PasskeyService
	totp      *TOTPService
	sessions  *SessionService
	users     UserStore
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(passwords *PasswordService, passkeys *PasskeyService, totp *TOTPService, sessions *SessionService, users UserStore) *Authenticator {
	return &Authenticator{
		passwords: passwords,
		passkeys:  passkeys,
		totp:      totp,
		sessions:  sessions,
		users:     users,
	}
}

// Register creates a password-method account and signs it in.
func (a *Authenticator) Register(ctx context.Context, email, password, passwordConfirm string, name *string, opts IssueSessionOpts) (*domain.User, *domain.TokenPair, error) {
	user, err := a.passwords.Register(ctx, email, password, passwordConfirm, name)
	if err != nil {
		return nil, nil, err
	}
	pair, err := a.sessions.IssueSession(ctx, user.ID, opts)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Login authenticates with email and password. When the account has TOTP
// enabled the password alone is not enough: a missing code yields
// ErrTOTPRequired and no session, a wrong code yields ErrInvalidTOTPCode.
// The step-up applies to password login only; a passkey assertion already
// proves possession and user presence.
func (a *Authenticator) Login(ctx context.Context, email, password, totpCode string, opts IssueSessionOpts) (*domain.User, *domain.TokenPair, error) {
	user, err := a.passwords.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	if user.TOTPEnabled {
		if totpCode == "" {
			return nil, nil, domain.ErrTOTPRequired
		}
		if err := a.totp.VerifyLogin(ctx, user.ID, totpCode); err != nil {
			if errors.Is(err, domain.ErrTOTPNotEnrolled) {
				// Flag set but secret missing; treat as an invalid code
				// rather than leaking storage state.
				return nil, nil, domain.ErrInvalidTOTPCode
			}
			return nil, nil, err
		}
	}

	_ = a.users.UpdateLastLogin(ctx, user.ID)

	pair, err := a.sessions.IssueSession(ctx, user.ID, opts)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// BeginPasskeyRegistration starts the passkey registration ceremony.
func (a *Authenticator) BeginPasskeyRegistration(ctx context.Context, email string) (*protocol.CredentialCreation, uuid.UUID, error) {
	return a.passkeys.BeginRegistration(ctx, email)
}

// FinishPasskeyRegistration completes the registration ceremony and signs
// the new account in.
func (a *Authenticator) FinishPasskeyRegistration(ctx context.Context, ceremonyID uuid.UUID, email string, response io.Reader, opts IssueSessionOpts) (*domain.User, *domain.TokenPair, error) {
	user, err := a.passkeys.FinishRegistration(ctx, ceremonyID, email, response)
	if err != nil {
		return nil, nil, err
	}
	pair, err := a.sessions.IssueSession(ctx, user.ID, opts)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// BeginPasskeyLogin starts the passkey authentication ceremony.
func (a *Authenticator) BeginPasskeyLogin(ctx context.Context, email string) (*protocol.CredentialAssertion, uuid.UUID, error) {
	return a.passkeys.BeginAuthentication(ctx, email)
}

// FinishPasskeyLogin completes the authentication ceremony and signs the
// user in.
func (a *Authenticator) FinishPasskeyLogin(ctx context.Context, ceremonyID uuid.UUID, email string, response io.Reader, opts IssueSessionOpts) (*domain.User, *domain.TokenPair, error) {
	user, err := a.passkeys.FinishAuthentication(ctx, ceremonyID, email, response)
	if err != nil {
		return nil, nil, err
	}
	pair, err := a.sessions.IssueSession(ctx, user.ID, opts)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// CheckAuthMethod reports which authentication method an email uses, or
// ErrUserNotFound for an unknown email. This deliberately discloses
// account existence so the login form can route to the right flow; the
// recovery endpoint is the one that stays silent.
func (a *Authenticator) CheckAuthMethod(ctx context.Context, email string) (domain.AuthMethod, error) {
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	user, err := a.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return "", err
	}
	return user.AuthMethod, nil
}
