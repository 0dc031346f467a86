package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// DefaultCeremonyTTL bounds the exposure window of an issued challenge.
const DefaultCeremonyTTL = 5 * time.Minute

// PasskeyConfig contains the relying-party settings.
type PasskeyConfig struct {
	RPID        string // e.g. "example.com"
	RPName      string // shown by the authenticator UI
	RPOrigin    string // e.g. "https://example.com"
	CeremonyTTL time.Duration
}

// PasskeyService runs the WebAuthn registration and authentication
// ceremonies. Challenges are server-generated, bound to one email and one
// ceremony kind, stored in the shared ceremony store, and consumable
// exactly once: the first finish attempt, pass or fail, invalidates them.
type PasskeyService struct {
	web        *webauthn.WebAuthn
	users      UserStore
	creds      CredentialStore
	ceremonies CeremonyStore
	ttl        time.Duration
}

// NewPasskeyService creates a new passkey service.
func NewPasskeyService(config PasskeyConfig, users UserStore, creds CredentialStore, ceremonies CeremonyStore) (*PasskeyService, error) {
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: config.RPName,
		RPID:          config.RPID,
		RPOrigins:     []string{config.RPOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure webauthn: %w", err)
	}
	ttl := config.CeremonyTTL
	if ttl == 0 {
		ttl = DefaultCeremonyTTL
	}
	return &PasskeyService{
		web:        web,
		users:      users,
		creds:      creds,
		ceremonies: ceremonies,
		ttl:        ttl,
	}, nil
}

// webauthnUser adapts an account to the library's user interface.
type webauthnUser struct {
	id    []byte
	email string
	creds []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return u.id }
func (u *webauthnUser) WebAuthnName() string                       { return u.email }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.email }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

// BeginRegistration issues registration options for a new passkey account.
// Registration is for accounts that do not exist yet; switching an
// existing account's method is the recovery flow's job. The one exception
// is a passkey account left without credentials by a recovery switch,
// which may re-enroll here.
func (s *PasskeyService) BeginRegistration(ctx context.Context, email string) (*protocol.CredentialCreation, uuid.UUID, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, uuid.Nil, err
	}
	email = NormalizeEmail(email)

	// The user handle is server-chosen. For a brand-new account it becomes
	// the account id once the ceremony verifies.
	handle := uuid.New()
	var existing []webauthn.Credential

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if user.AuthMethod != domain.AuthMethodPasskey {
			return nil, uuid.Nil, domain.ErrUserAlreadyExists
		}
		creds, err := s.creds.ListByUserID(ctx, user.ID)
		if err != nil {
			return nil, uuid.Nil, err
		}
		if len(creds) > 0 {
			return nil, uuid.Nil, domain.ErrUserAlreadyExists
		}
		// Post-recovery re-enrollment window: keep the existing account id.
		handle = user.ID
	case errors.Is(err, domain.ErrUserNotFound):
		// New account.
	default:
		return nil, uuid.Nil, err
	}

	wu := &webauthnUser{id: handle[:], email: email, creds: existing}
	options, session, err := s.web.BeginRegistration(wu,
		webauthn.WithExclusions(credentialDescriptors(existing)),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
	)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to begin registration: %w", err)
	}

	ceremonyID, err := s.saveCeremony(ctx, email, domain.CeremonyRegistration, session)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return options, ceremonyID, nil
}

// FinishRegistration verifies the attestation response and commits the
// account with its first credential. The ceremony is consumed before
// verification, so a failed attempt cannot be retried with the same
// challenge.
func (s *PasskeyService) FinishRegistration(ctx context.Context, ceremonyID uuid.UUID, email string, response io.Reader) (*domain.User, error) {
	email = NormalizeEmail(email)

	session, err := s.consumeCeremony(ctx, ceremonyID, domain.CeremonyRegistration, email)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAttestationInvalid, err)
	}

	handle, err := uuid.FromBytes(session.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed user handle", domain.ErrAttestationInvalid)
	}

	wu := &webauthnUser{id: session.UserID, email: email}
	cred, err := s.web.CreateCredential(wu, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAttestationInvalid, err)
	}

	// A credential id is globally unique; re-registering one that is
	// already bound to any account is rejected.
	exists, err := s.creds.ExistsByCredentialID(ctx, cred.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrCredentialExists
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		// Re-enrollment after recovery: the account already has the
		// passkey method and no credentials.
		if user.AuthMethod != domain.AuthMethodPasskey || user.ID != handle {
			return nil, domain.ErrUserAlreadyExists
		}
		if err := s.creds.Create(ctx, domain.NewPasskeyCredential(user.ID, cred)); err != nil {
			return nil, err
		}
	case errors.Is(err, domain.ErrUserNotFound):
		now := time.Now()
		user = &domain.User{
			ID:         handle,
			Email:      email,
			AuthMethod: domain.AuthMethodPasskey,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.users.CreatePasskeyUser(ctx, user, domain.NewPasskeyCredential(user.ID, cred)); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return user, nil
}

// BeginAuthentication issues authentication options for a passkey account.
// Unlike recovery, this endpoint may reveal account state: the client has
// to know whether a passkey or a password is expected, so an unknown email
// and a password account produce distinct errors.
func (s *PasskeyService) BeginAuthentication(ctx context.Context, email string) (*protocol.CredentialAssertion, uuid.UUID, error) {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if user.AuthMethod != domain.AuthMethodPasskey {
		return nil, uuid.Nil, domain.ErrWrongAuthMethod
	}

	wu, err := s.loadWebauthnUser(ctx, user)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if len(wu.creds) == 0 {
		return nil, uuid.Nil, domain.ErrPasskeyNotRegistered
	}

	assertion, session, err := s.web.BeginLogin(wu)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to begin authentication: %w", err)
	}

	ceremonyID, err := s.saveCeremony(ctx, email, domain.CeremonyAuthentication, session)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return assertion, ceremonyID, nil
}

// FinishAuthentication verifies the signed assertion, enforces sign-count
// monotonicity, and returns the authenticated user. The ceremony is
// consumed first; replaying the identical response cannot succeed twice.
func (s *PasskeyService) FinishAuthentication(ctx context.Context, ceremonyID uuid.UUID, email string, response io.Reader) (*domain.User, error) {
	email = NormalizeEmail(email)

	session, err := s.consumeCeremony(ctx, ceremonyID, domain.CeremonyAuthentication, email)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAssertionInvalid, err)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.AuthMethod != domain.AuthMethodPasskey {
		return nil, domain.ErrWrongAuthMethod
	}

	wu, err := s.loadWebauthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	cred, err := s.web.ValidateLogin(wu, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAssertionInvalid, err)
	}
	if cred.Authenticator.CloneWarning {
		return nil, domain.ErrCloneDetected
	}

	// The store is the authority on monotonicity: under concurrent
	// replays of the same assertion, at most one counter advance wins.
	if err := s.creds.UpdateSignCount(ctx, cred.ID, cred.Authenticator.SignCount); err != nil {
		return nil, err
	}

	_ = s.users.UpdateLastLogin(ctx, user.ID)
	return user, nil
}

func (s *PasskeyService) loadWebauthnUser(ctx context.Context, user *domain.User) (*webauthnUser, error) {
	stored, err := s.creds.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	creds := make([]webauthn.Credential, 0, len(stored))
	for _, c := range stored {
		creds = append(creds, c.WebAuthnCredential())
	}
	return &webauthnUser{id: user.ID[:], email: user.Email, creds: creds}, nil
}

func (s *PasskeyService) saveCeremony(ctx context.Context, email string, kind domain.CeremonyKind, session *webauthn.SessionData) (uuid.UUID, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal session data: %w", err)
	}
	now := time.Now()
	ceremony := &domain.Ceremony{
		ID:          uuid.New(),
		Email:       email,
		Kind:        kind,
		SessionData: data,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.ceremonies.Create(ctx, ceremony); err != nil {
		return uuid.Nil, fmt.Errorf("failed to store ceremony: %w", err)
	}
	return ceremony.ID, nil
}

func (s *PasskeyService) consumeCeremony(ctx context.Context, id uuid.UUID, kind domain.CeremonyKind, email string) (*webauthn.SessionData, error) {
	ceremony, err := s.ceremonies.Consume(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	if ceremony.Email != email {
		return nil, domain.ErrCeremonyMismatch
	}
	session := &webauthn.SessionData{}
	if err := json.Unmarshal(ceremony.SessionData, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	return session, nil
}

func credentialDescriptors(creds []webauthn.Credential) []protocol.CredentialDescriptor {
	descriptors := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		descriptors = append(descriptors, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
			Transport:    c.Transport,
		})
	}
	return descriptors
}
