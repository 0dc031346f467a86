package domain

import "errors"

// Authentication errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWrongAuthMethod    = errors.New("account uses a different authentication method")
	ErrAccountLocked      = errors.New("account locked due to too many failed login attempts")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrInvalidToken       = errors.New("invalid token")
)

// Validation errors
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrWeakPassword     = errors.New("password does not meet requirements")
	ErrPasswordMismatch = errors.New("password confirmation does not match")
)

// TOTP errors
var (
	ErrTOTPRequired       = errors.New("TOTP code required")
	ErrInvalidTOTPCode    = errors.New("invalid TOTP code")
	ErrTOTPNotEnrolled    = errors.New("TOTP is not enrolled for this account")
	ErrTOTPNotEnabled     = errors.New("TOTP is not enabled for this account")
	ErrTOTPAlreadyEnabled = errors.New("TOTP is already enabled")
)

// WebAuthn ceremony errors
var (
	ErrCeremonyNotFound     = errors.New("ceremony not found")
	ErrCeremonyExpired      = errors.New("ceremony expired")
	ErrCeremonyConsumed     = errors.New("ceremony already used")
	ErrCeremonyMismatch     = errors.New("ceremony does not match this account")
	ErrAttestationInvalid   = errors.New("registration response verification failed")
	ErrAssertionInvalid     = errors.New("authentication response verification failed")
	ErrCredentialExists     = errors.New("credential already registered")
	ErrCredentialNotFound   = errors.New("credential not found")
	ErrCloneDetected        = errors.New("credential sign count regression - possible cloned authenticator")
	ErrPasskeyNotRegistered = errors.New("no passkey registered for this account")
)

// Recovery errors
var (
	ErrRecoveryTokenInvalid  = errors.New("invalid recovery token")
	ErrRecoveryTokenExpired  = errors.New("recovery token expired")
	ErrRecoveryTokenConsumed = errors.New("recovery token already used")
)

// Todo errors
var (
	ErrTodoNotFound = errors.New("todo not found")
)
