package auth

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/giterdone/giterdone/pkg/domain"
)

const (
	totpPeriod = 30
	totpWindow = 1 // Allow ±30 seconds clock drift
)

// TOTPConfig contains configuration for the TOTP service.
type TOTPConfig struct {
	Issuer        string // shown in authenticator apps
	EncryptionKey []byte // 32 bytes for AES-256
}

// TOTPService handles the optional time-based second factor. A secret is
// pending from enrollment until a valid code is verified; only then does
// the account's TOTPEnabled flag flip.
type TOTPService struct {
	config  TOTPConfig
	users   UserStore
	secrets TOTPStore
}

// NewTOTPService creates a new TOTP service.
func NewTOTPService(config TOTPConfig, users UserStore, secrets TOTPStore) *TOTPService {
	return &TOTPService{config: config, users: users, secrets: secrets}
}

// Enroll generates a fresh secret for the user and stores it pending.
// Calling Enroll again before verification overwrites the pending secret.
func (s *TOTPService) Enroll(ctx context.Context, userID uuid.UUID) (*domain.TOTPEnrollment, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, domain.ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	var qrBuf bytes.Buffer
	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code image: %w", err)
	}
	if err := png.Encode(&qrBuf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	encrypted, err := s.encryptSecret(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	if err := s.secrets.Upsert(ctx, &domain.TOTPSecret{
		ID:              uuid.New(),
		UserID:          userID,
		SecretEncrypted: encrypted,
		CreatedAt:       time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	return &domain.TOTPEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeDataURI:   fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(qrBuf.Bytes())),
	}, nil
}

// VerifyEnroll verifies a code against the pending secret and enables the
// second factor on success. An invalid code leaves the pending secret
// untouched so the user can retry.
func (s *TOTPService) VerifyEnroll(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPEnabled {
		return domain.ErrTOTPAlreadyEnabled
	}

	secret, valid, err := s.validateCode(ctx, userID, code)
	if err != nil {
		return err
	}
	if !valid {
		return domain.ErrInvalidTOTPCode
	}

	if err := s.users.SetTOTPEnabled(ctx, userID, true); err != nil {
		return fmt.Errorf("failed to enable TOTP: %w", err)
	}
	_ = s.secrets.UpdateLastUsed(ctx, secret.ID)
	return nil
}

// VerifyLogin verifies a code against the committed secret during the
// password-login step-up.
func (s *TOTPService) VerifyLogin(ctx context.Context, userID uuid.UUID, code string) error {
	secret, valid, err := s.validateCode(ctx, userID, code)
	if err != nil {
		return err
	}
	if !valid {
		return domain.ErrInvalidTOTPCode
	}
	_ = s.secrets.UpdateLastUsed(ctx, secret.ID)
	return nil
}

// Disable requires one more valid code before clearing the flag and
// removing the secret (knowledge proof before removal).
func (s *TOTPService) Disable(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return domain.ErrTOTPNotEnabled
	}

	_, valid, err := s.validateCode(ctx, userID, code)
	if err != nil {
		return err
	}
	if !valid {
		return domain.ErrInvalidTOTPCode
	}

	if err := s.users.SetTOTPEnabled(ctx, userID, false); err != nil {
		return fmt.Errorf("failed to disable TOTP: %w", err)
	}
	return s.secrets.DeleteByUserID(ctx, userID)
}

func (s *TOTPService) validateCode(ctx context.Context, userID uuid.UUID, code string) (*domain.TOTPSecret, bool, error) {
	secret, err := s.secrets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	decrypted, err := s.decryptSecret(secret.SecretEncrypted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	valid, err := totp.ValidateCustom(code, decrypted, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to validate TOTP code: %w", err)
	}
	return secret, valid, nil
}

// encryptSecret encrypts a plaintext secret using AES-256-GCM.
func (s *TOTPService) encryptSecret(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.config.EncryptionKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptSecret decrypts an encrypted secret using AES-256-GCM.
func (s *TOTPService) decryptSecret(encrypted string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(s.config.EncryptionKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
