package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/giterdone/giterdone/pkg/domain"
)

func newSessionFixture(t *testing.T) (*SessionService, *fakeSessionStore, *domain.User) {
	t.Helper()
	users := newFakeUserStore()
	sessions := newFakeSessionStore()

	svc := NewSessionService(SessionConfig{
		JWTSecret: []byte("test-secret-key"),
		Issuer:    "giterdone-test",
	}, sessions, users)

	passwords := NewPasswordService(users, nil)
	user, err := passwords.Register(context.Background(), "alice@example.com", "Str0ngPass!23", "Str0ngPass!23", nil)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return svc, sessions, user
}

func TestIssueSession(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	pair, err := svc.IssueSession(context.Background(), user.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("both tokens should be populated")
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", pair.TokenType)
	}

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.Subject != user.ID.String() {
		t.Errorf("Subject = %q, want user id", claims.Subject)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.AuthMethod != string(domain.AuthMethodPassword) {
		t.Errorf("AuthMethod = %q", claims.AuthMethod)
	}
}

func TestValidateAccessToken_Invalid(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	pair, err := svc.IssueSession(context.Background(), user.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatal(err)
	}

	other := NewSessionService(SessionConfig{JWTSecret: []byte("different-secret")}, newFakeSessionStore(), newFakeUserStore())

	tests := []struct {
		name  string
		token string
		svc   *SessionService
	}{
		{name: "garbage", token: "not.a.jwt", svc: svc},
		{name: "empty", token: "", svc: svc},
		{name: "wrong key", token: pair.AccessToken, svc: other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.svc.ValidateAccessToken(tt.token); !errors.Is(err, domain.ErrInvalidToken) {
				t.Errorf("ValidateAccessToken = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestRefreshSession_Rotates(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	pair, err := svc.IssueSession(context.Background(), user.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatal(err)
	}

	refreshed, err := svc.RefreshSession(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if refreshed.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token should rotate")
	}

	// The old refresh token is dead after rotation.
	if _, err := svc.RefreshSession(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("old token refresh = %v, want ErrSessionNotFound", err)
	}
	// The rotated token still works.
	if _, err := svc.RefreshSession(context.Background(), refreshed.RefreshToken); err != nil {
		t.Errorf("rotated token refresh failed: %v", err)
	}
}

func TestRefreshSession_Expired(t *testing.T) {
	svc, sessions, user := newSessionFixture(t)

	pair, err := svc.IssueSession(context.Background(), user.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatal(err)
	}

	sessions.mu.Lock()
	for _, s := range sessions.sessions {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	}
	sessions.mu.Unlock()

	if _, err := svc.RefreshSession(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("RefreshSession = %v, want ErrSessionExpired", err)
	}
}

func TestRevokeSession(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	pair, err := svc.IssueSession(context.Background(), user.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RevokeSession(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if _, err := svc.RefreshSession(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("revoked refresh = %v, want ErrSessionRevoked", err)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	p1, _ := svc.IssueSession(context.Background(), user.ID, IssueSessionOpts{})
	p2, _ := svc.IssueSession(context.Background(), user.ID, IssueSessionOpts{})

	if err := svc.RevokeAllSessions(context.Background(), user.ID); err != nil {
		t.Fatalf("RevokeAllSessions failed: %v", err)
	}

	for _, pair := range []*domain.TokenPair{p1, p2} {
		if _, err := svc.RefreshSession(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
			t.Errorf("refresh after revoke-all = %v, want ErrSessionRevoked", err)
		}
	}
}
