package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

func newPasskeyFixture(t *testing.T) (*PasskeyService, *fakeUserStore, *fakeCredentialStore, *fakeCeremonyStore) {
	t.Helper()
	users := newFakeUserStore()
	creds := newFakeCredentialStore()
	users.creds = creds
	ceremonies := newFakeCeremonyStore()

	svc, err := NewPasskeyService(PasskeyConfig{
		RPID:     "localhost",
		RPName:   "Giterdone",
		RPOrigin: "http://localhost:8080",
	}, users, creds, ceremonies)
	if err != nil {
		t.Fatalf("NewPasskeyService failed: %v", err)
	}
	return svc, users, creds, ceremonies
}

func addPasskeyUser(t *testing.T, users *fakeUserStore, email string, withCredential bool) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:         uuid.New(),
		Email:      email,
		AuthMethod: domain.AuthMethodPasskey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !withCredential {
		if err := users.Create(context.Background(), user, nil); err != nil {
			t.Fatal(err)
		}
		return user
	}
	cred := &domain.PasskeyCredential{
		ID:           uuid.New(),
		UserID:       user.ID,
		CredentialID: []byte("cred-" + email),
		PublicKey:    []byte("pubkey"),
		CreatedAt:    now,
	}
	if err := users.CreatePasskeyUser(context.Background(), user, cred); err != nil {
		t.Fatal(err)
	}
	return user
}

func TestBeginRegistration(t *testing.T) {
	svc, _, _, ceremonies := newPasskeyFixture(t)

	options, ceremonyID, err := svc.BeginRegistration(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("BeginRegistration failed: %v", err)
	}
	if ceremonyID == uuid.Nil {
		t.Error("ceremony id should be set")
	}
	if len(options.Response.Challenge) == 0 {
		t.Error("challenge should be server-generated")
	}
	if options.Response.RelyingParty.ID != "localhost" {
		t.Errorf("RPID = %q", options.Response.RelyingParty.ID)
	}

	ceremonies.mu.Lock()
	stored := ceremonies.ceremonies[ceremonyID]
	ceremonies.mu.Unlock()
	if stored == nil {
		t.Fatal("ceremony should be persisted")
	}
	if stored.Email != "alice@example.com" || stored.Kind != domain.CeremonyRegistration {
		t.Errorf("ceremony bound to %q/%q", stored.Email, stored.Kind)
	}
}

func TestBeginRegistration_ExistingAccounts(t *testing.T) {
	svc, users, _, _ := newPasskeyFixture(t)

	passwords := NewPasswordService(users, nil)
	if _, err := passwords.Register(context.Background(), "pw@example.com", "Str0ngPass!23", "Str0ngPass!23", nil); err != nil {
		t.Fatal(err)
	}
	addPasskeyUser(t, users, "pk@example.com", true)

	tests := []struct {
		name  string
		email string
	}{
		{name: "password account", email: "pw@example.com"},
		{name: "passkey account with credentials", email: "pk@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.BeginRegistration(context.Background(), tt.email)
			if !errors.Is(err, domain.ErrUserAlreadyExists) {
				t.Errorf("BeginRegistration = %v, want ErrUserAlreadyExists", err)
			}
		})
	}
}

func TestBeginRegistration_ReenrollAfterRecovery(t *testing.T) {
	svc, users, _, ceremonies := newPasskeyFixture(t)

	// A recovery switch to passkey leaves the account with no credentials.
	user := addPasskeyUser(t, users, "alice@example.com", false)

	_, ceremonyID, err := svc.BeginRegistration(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("credential-less account should be allowed to re-enroll: %v", err)
	}

	// The existing account id stays the user handle.
	ceremonies.mu.Lock()
	stored := ceremonies.ceremonies[ceremonyID]
	ceremonies.mu.Unlock()
	if !strings.Contains(string(stored.SessionData), base64.StdEncoding.EncodeToString(user.ID[:])) {
		t.Error("session data should carry the existing account id as the user handle")
	}
}

func TestBeginRegistration_InvalidEmail(t *testing.T) {
	svc, _, _, _ := newPasskeyFixture(t)

	if _, _, err := svc.BeginRegistration(context.Background(), "nope"); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Errorf("BeginRegistration = %v, want ErrInvalidEmail", err)
	}
}

func TestBeginAuthentication(t *testing.T) {
	svc, users, _, ceremonies := newPasskeyFixture(t)
	addPasskeyUser(t, users, "alice@example.com", true)

	assertion, ceremonyID, err := svc.BeginAuthentication(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("BeginAuthentication failed: %v", err)
	}
	if len(assertion.Response.Challenge) == 0 {
		t.Error("challenge should be server-generated")
	}
	if len(assertion.Response.AllowedCredentials) != 1 {
		t.Errorf("AllowedCredentials = %d, want 1", len(assertion.Response.AllowedCredentials))
	}

	ceremonies.mu.Lock()
	stored := ceremonies.ceremonies[ceremonyID]
	ceremonies.mu.Unlock()
	if stored == nil || stored.Kind != domain.CeremonyAuthentication {
		t.Error("authentication ceremony should be persisted with its kind")
	}
}

func TestBeginAuthentication_Errors(t *testing.T) {
	svc, users, _, _ := newPasskeyFixture(t)

	passwords := NewPasswordService(users, nil)
	if _, err := passwords.Register(context.Background(), "pw@example.com", "Str0ngPass!23", "Str0ngPass!23", nil); err != nil {
		t.Fatal(err)
	}
	addPasskeyUser(t, users, "empty@example.com", false)

	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{name: "unknown email", email: "nobody@example.com", wantErr: domain.ErrUserNotFound},
		{name: "password account", email: "pw@example.com", wantErr: domain.ErrWrongAuthMethod},
		{name: "no credentials", email: "empty@example.com", wantErr: domain.ErrPasskeyNotRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.BeginAuthentication(context.Background(), tt.email)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("BeginAuthentication = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConsumeCeremony_AtMostOnce(t *testing.T) {
	svc, _, _, _ := newPasskeyFixture(t)

	_, ceremonyID, err := svc.BeginRegistration(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.consumeCeremony(context.Background(), ceremonyID, domain.CeremonyRegistration, "alice@example.com"); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if _, err := svc.consumeCeremony(context.Background(), ceremonyID, domain.CeremonyRegistration, "alice@example.com"); !errors.Is(err, domain.ErrCeremonyConsumed) {
		t.Errorf("second consume = %v, want ErrCeremonyConsumed", err)
	}
}

func TestConsumeCeremony_Binding(t *testing.T) {
	svc, _, _, ceremonies := newPasskeyFixture(t)

	_, regID, err := svc.BeginRegistration(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	// Wrong kind: a registration ceremony cannot finish an authentication.
	if _, err := svc.consumeCeremony(context.Background(), regID, domain.CeremonyAuthentication, "alice@example.com"); !errors.Is(err, domain.ErrCeremonyNotFound) {
		t.Errorf("wrong kind = %v, want ErrCeremonyNotFound", err)
	}

	// Wrong email: the binding check still consumes the ceremony.
	_, regID2, err := svc.BeginRegistration(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.consumeCeremony(context.Background(), regID2, domain.CeremonyRegistration, "mallory@example.com"); !errors.Is(err, domain.ErrCeremonyMismatch) {
		t.Errorf("wrong email = %v, want ErrCeremonyMismatch", err)
	}
	if _, err := svc.consumeCeremony(context.Background(), regID2, domain.CeremonyRegistration, "alice@example.com"); !errors.Is(err, domain.ErrCeremonyConsumed) {
		t.Errorf("mismatched ceremony should still be burned, got %v", err)
	}

	// Expired ceremonies cannot be consumed.
	_, regID3, err := svc.BeginRegistration(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	ceremonies.mu.Lock()
	ceremonies.ceremonies[regID3].ExpiresAt = time.Now().Add(-time.Minute)
	ceremonies.mu.Unlock()
	if _, err := svc.consumeCeremony(context.Background(), regID3, domain.CeremonyRegistration, "alice@example.com"); !errors.Is(err, domain.ErrCeremonyExpired) {
		t.Errorf("expired consume = %v, want ErrCeremonyExpired", err)
	}
}

func TestUpdateSignCount_Monotonic(t *testing.T) {
	_, users, creds, _ := newPasskeyFixture(t)
	user := addPasskeyUser(t, users, "alice@example.com", true)

	stored, err := creds.ListByUserID(context.Background(), user.ID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("ListByUserID = %v, %d creds", err, len(stored))
	}
	id := stored[0].CredentialID

	if err := creds.UpdateSignCount(context.Background(), id, 1); err != nil {
		t.Fatalf("advance to 1 failed: %v", err)
	}
	if err := creds.UpdateSignCount(context.Background(), id, 1); !errors.Is(err, domain.ErrCloneDetected) {
		t.Errorf("repeat count = %v, want ErrCloneDetected", err)
	}
	if err := creds.UpdateSignCount(context.Background(), id, 5); err != nil {
		t.Fatalf("advance to 5 failed: %v", err)
	}
	if err := creds.UpdateSignCount(context.Background(), id, 3); !errors.Is(err, domain.ErrCloneDetected) {
		t.Errorf("regressing count = %v, want ErrCloneDetected", err)
	}
}

func TestUpdateSignCount_ZeroCounterAuthenticator(t *testing.T) {
	_, users, creds, _ := newPasskeyFixture(t)
	user := addPasskeyUser(t, users, "alice@example.com", true)

	stored, _ := creds.ListByUserID(context.Background(), user.ID)
	id := stored[0].CredentialID

	// Authenticators that never count report zero forever; that is not a
	// clone signal.
	if err := creds.UpdateSignCount(context.Background(), id, 0); err != nil {
		t.Errorf("0 -> 0 should be allowed: %v", err)
	}
	if err := creds.UpdateSignCount(context.Background(), id, 0); err != nil {
		t.Errorf("repeated 0 -> 0 should be allowed: %v", err)
	}
}
