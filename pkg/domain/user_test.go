package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAuthMethod_Valid(t *testing.T) {
	tests := []struct {
		method AuthMethod
		want   bool
	}{
		{method: AuthMethodPassword, want: true},
		{method: AuthMethodPasskey, want: true},
		{method: "", want: false},
		{method: "oauth", want: false},
		{method: "Password", want: false},
	}

	for _, tt := range tests {
		if got := tt.method.Valid(); got != tt.want {
			t.Errorf("AuthMethod(%q).Valid() = %v, want %v", tt.method, got, tt.want)
		}
	}
}

func TestUser_IsLocked(t *testing.T) {
	now := time.Now()
	past := now.Add(-1 * time.Hour)
	future := now.Add(1 * time.Hour)

	tests := []struct {
		name        string
		lockedUntil *time.Time
		want        bool
	}{
		{
			name:        "not locked (nil)",
			lockedUntil: nil,
			want:        false,
		},
		{
			name:        "locked (future time)",
			lockedUntil: &future,
			want:        true,
		},
		{
			name:        "not locked (past time)",
			lockedUntil: &past,
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &User{
				ID:          uuid.New(),
				Email:       "test@example.com",
				LockedUntil: tt.lockedUntil,
			}

			if got := user.IsLocked(); got != tt.want {
				t.Errorf("IsLocked() = %v, want %v", got, tt.want)
			}
		})
	}
}
