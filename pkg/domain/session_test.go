package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSession_IsValid(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)

	tests := []struct {
		name      string
		expiresAt time.Time
		revokedAt *time.Time
		want      bool
	}{
		{
			name:      "live session",
			expiresAt: now.Add(time.Hour),
			want:      true,
		},
		{
			name:      "expired",
			expiresAt: now.Add(-time.Hour),
			want:      false,
		},
		{
			name:      "revoked",
			expiresAt: now.Add(time.Hour),
			revokedAt: &revoked,
			want:      false,
		},
		{
			name:      "revoked and expired",
			expiresAt: now.Add(-time.Hour),
			revokedAt: &revoked,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &Session{
				ID:        uuid.New(),
				UserID:    uuid.New(),
				ExpiresAt: tt.expiresAt,
				RevokedAt: tt.revokedAt,
			}

			if got := session.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecoveryToken_IsValid(t *testing.T) {
	now := time.Now()
	consumed := now.Add(-time.Minute)

	tests := []struct {
		name       string
		expiresAt  time.Time
		consumedAt *time.Time
		want       bool
	}{
		{
			name:      "redeemable",
			expiresAt: now.Add(time.Hour),
			want:      true,
		},
		{
			name:      "expired",
			expiresAt: now.Add(-time.Hour),
			want:      false,
		},
		{
			name:       "consumed",
			expiresAt:  now.Add(time.Hour),
			consumedAt: &consumed,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &RecoveryToken{
				ID:         uuid.New(),
				UserID:     uuid.New(),
				ExpiresAt:  tt.expiresAt,
				ConsumedAt: tt.consumedAt,
			}

			if got := token.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
