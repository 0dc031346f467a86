package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// In-memory store implementations for exercising the services without a
// database. Consumption semantics mirror the SQL repositories: ceremonies
// and recovery tokens can be consumed at most once.

type fakeUserStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*domain.User
	passwords map[uuid.UUID]string
	creds     *fakeCredentialStore // optional, for CreatePasskeyUser
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:     make(map[uuid.UUID]*domain.User),
		passwords: make(map[uuid.UUID]string),
	}
}

func (s *fakeUserStore) Create(ctx context.Context, user *domain.User, passwordHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return domain.ErrUserAlreadyExists
		}
	}
	copied := *user
	s.users[user.ID] = &copied
	if passwordHash != nil {
		s.passwords[user.ID] = *passwordHash
	}
	return nil
}

func (s *fakeUserStore) CreatePasskeyUser(ctx context.Context, user *domain.User, cred *domain.PasskeyCredential) error {
	if err := s.Create(ctx, user, nil); err != nil {
		return err
	}
	if s.creds != nil {
		return s.creds.Create(ctx, cred)
	}
	return nil
}

func (s *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *fakeUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	if err == domain.ErrUserNotFound {
		return false, nil
	}
	return false, err
}

func (s *fakeUserStore) SetAuthMethod(ctx context.Context, userID uuid.UUID, method domain.AuthMethod, passwordHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	switch method {
	case domain.AuthMethodPassword:
		if passwordHash == nil {
			return domain.ErrWrongAuthMethod
		}
		s.passwords[userID] = *passwordHash
		if s.creds != nil {
			s.creds.deleteByUserID(userID)
		}
	case domain.AuthMethodPasskey:
		delete(s.passwords, userID)
	default:
		return domain.ErrWrongAuthMethod
	}
	user.AuthMethod = method
	return nil
}

func (s *fakeUserStore) GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.passwords[userID]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return hash, nil
}

func (s *fakeUserStore) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	s.passwords[userID] = hash
	return nil
}

func (s *fakeUserStore) SetTOTPEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.TOTPEnabled = enabled
	return nil
}

func (s *fakeUserStore) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	now := time.Now()
	user.LastLoginAt = &now
	return nil
}

func (s *fakeUserStore) IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= maxAttempts {
		until := time.Now().Add(lockoutDuration)
		user.LockedUntil = &until
	}
	return nil
}

func (s *fakeUserStore) ResetFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	return nil
}

type fakeCredentialStore struct {
	mu    sync.Mutex
	creds []*domain.PasskeyCredential
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{}
}

func (s *fakeCredentialStore) Create(ctx context.Context, cred *domain.PasskeyCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cred
	s.creds = append(s.creds, &copied)
	return nil
}

func (s *fakeCredentialStore) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.PasskeyCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.PasskeyCredential{}
	for _, c := range s.creds {
		if c.UserID == userID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeCredentialStore) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if string(c.CredentialID) == string(credentialID) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, domain.ErrCredentialNotFound
}

func (s *fakeCredentialStore) ExistsByCredentialID(ctx context.Context, credentialID []byte) (bool, error) {
	_, err := s.GetByCredentialID(ctx, credentialID)
	if err == nil {
		return true, nil
	}
	if err == domain.ErrCredentialNotFound {
		return false, nil
	}
	return false, err
}

func (s *fakeCredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if string(c.CredentialID) == string(credentialID) {
			if c.SignCount < newCount || (c.SignCount == 0 && newCount == 0) {
				c.SignCount = newCount
				return nil
			}
			return domain.ErrCloneDetected
		}
	}
	return domain.ErrCredentialNotFound
}

func (s *fakeCredentialStore) deleteByUserID(userID uuid.UUID) {
	kept := s.creds[:0]
	for _, c := range s.creds {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	s.creds = kept
}

type fakeCeremonyStore struct {
	mu         sync.Mutex
	ceremonies map[uuid.UUID]*domain.Ceremony
}

func newFakeCeremonyStore() *fakeCeremonyStore {
	return &fakeCeremonyStore{ceremonies: make(map[uuid.UUID]*domain.Ceremony)}
}

func (s *fakeCeremonyStore) Create(ctx context.Context, c *domain.Ceremony) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *c
	s.ceremonies[c.ID] = &copied
	return nil
}

func (s *fakeCeremonyStore) Consume(ctx context.Context, id uuid.UUID, kind domain.CeremonyKind) (*domain.Ceremony, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.ceremonies[id]
	if !ok || c.Kind != kind {
		return nil, domain.ErrCeremonyNotFound
	}
	if c.ConsumedAt != nil {
		return nil, domain.ErrCeremonyConsumed
	}
	if time.Now().After(c.ExpiresAt) {
		return nil, domain.ErrCeremonyExpired
	}
	now := time.Now()
	c.ConsumedAt = &now
	copied := *c
	return &copied, nil
}

type fakeRecoveryTokenStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*domain.RecoveryToken
}

func newFakeRecoveryTokenStore() *fakeRecoveryTokenStore {
	return &fakeRecoveryTokenStore{tokens: make(map[uuid.UUID]*domain.RecoveryToken)}
}

func (s *fakeRecoveryTokenStore) Create(ctx context.Context, token *domain.RecoveryToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *token
	s.tokens[token.ID] = &copied
	return nil
}

func (s *fakeRecoveryTokenStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RecoveryToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			copied := *t
			return &copied, nil
		}
	}
	return nil, domain.ErrRecoveryTokenInvalid
}

func (s *fakeRecoveryTokenStore) MarkConsumed(ctx context.Context, tokenID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenID]
	if !ok || t.ConsumedAt != nil {
		return domain.ErrRecoveryTokenConsumed
	}
	now := time.Now()
	t.ConsumedAt = &now
	return nil
}

func (s *fakeRecoveryTokenStore) RevokeActive(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, t := range s.tokens {
		if t.UserID == userID && t.ConsumedAt == nil {
			t.ConsumedAt = &now
		}
	}
	return nil
}

type fakeTOTPStore struct {
	mu      sync.Mutex
	secrets map[uuid.UUID]*domain.TOTPSecret // keyed by user id
}

func newFakeTOTPStore() *fakeTOTPStore {
	return &fakeTOTPStore{secrets: make(map[uuid.UUID]*domain.TOTPSecret)}
}

func (s *fakeTOTPStore) Upsert(ctx context.Context, secret *domain.TOTPSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *secret
	s.secrets[secret.UserID] = &copied
	return nil
}

func (s *fakeTOTPStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.TOTPSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[userID]
	if !ok {
		return nil, domain.ErrTOTPNotEnrolled
	}
	copied := *secret
	return &copied, nil
}

func (s *fakeTOTPStore) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, secret := range s.secrets {
		if secret.ID == id {
			now := time.Now()
			secret.LastUsedAt = &now
			return nil
		}
	}
	return domain.ErrTOTPNotEnrolled
}

func (s *fakeTOTPStore) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, userID)
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (s *fakeSessionStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *fakeSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TokenHash == tokenHash {
			copied := *session
			return &copied, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (s *fakeSessionStore) RotateToken(ctx context.Context, sessionID uuid.UUID, oldHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.TokenHash != oldHash || session.RevokedAt != nil {
		return domain.ErrSessionNotFound
	}
	session.TokenHash = newHash
	return nil
}

func (s *fakeSessionStore) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	now := time.Now()
	session.RevokedAt = &now
	return nil
}

func (s *fakeSessionStore) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TokenHash == tokenHash {
			now := time.Now()
			session.RevokedAt = &now
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

func (s *fakeSessionStore) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, session := range s.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &now
		}
	}
	return nil
}

func (s *fakeSessionStore) UpdateLastSeen(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	now := time.Now()
	session.LastSeenAt = &now
	return nil
}
