package passkey

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/internal/httputil"
	"github.com/giterdone/giterdone/pkg/auth"
	"github.com/giterdone/giterdone/pkg/domain"
)

// Handler handles WebAuthn passkey ceremony endpoints. Each flow is two
// requests: begin returns the library's options plus a ceremony id, and
// finish presents the authenticator's response against that ceremony.
type Handler struct {
	logger         *slog.Logger
	authenticator  *auth.Authenticator
	sessionService *auth.SessionService
	cookieConfig   httputil.CookieConfig
}

// NewHandler creates a new passkey handler.
func NewHandler(logger *slog.Logger, authenticator *auth.Authenticator, sessionService *auth.SessionService) *Handler {
	return &Handler{
		logger:         logger,
		authenticator:  authenticator,
		sessionService: sessionService,
		cookieConfig:   httputil.DefaultCookieConfig(),
	}
}

// BeginRequest represents a ceremony begin request.
type BeginRequest struct {
	Email string `json:"email"`
}

// BeginResponse wraps the WebAuthn options with the ceremony id the
// client must echo back on finish.
type BeginResponse struct {
	CeremonyID string `json:"ceremony_id"`
	Options    any    `json:"options"`
}

// FinishRequest represents a ceremony finish request. Credential carries
// the authenticator's response verbatim.
type FinishRequest struct {
	CeremonyID string          `json:"ceremony_id"`
	Email      string          `json:"email"`
	Credential json.RawMessage `json:"credential"`
}

// TokenResponse represents a token response (for mobile clients).
type TokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// RegisterBegin starts passkey registration.
// POST /v1/auth/passkey/register/begin
func (h *Handler) RegisterBegin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBegin(w, r)
	if !ok {
		return
	}

	options, ceremonyID, err := h.authenticator.BeginPasskeyRegistration(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidEmail):
			httputil.Error(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, domain.ErrUserAlreadyExists):
			httputil.Error(w, http.StatusConflict, "an account with this email already exists")
		default:
			h.logger.Error("failed to begin passkey registration", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to begin registration")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, BeginResponse{
		CeremonyID: ceremonyID.String(),
		Options:    options,
	})
}

// RegisterFinish completes passkey registration and signs the new
// account in.
// POST /v1/auth/passkey/register/finish
func (h *Handler) RegisterFinish(w http.ResponseWriter, r *http.Request) {
	req, ceremonyID, ok := h.decodeFinish(w, r)
	if !ok {
		return
	}

	opts := auth.IssueSessionOpts{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	_, tokens, err := h.authenticator.FinishPasskeyRegistration(r.Context(), ceremonyID, req.Email, bytes.NewReader(req.Credential), opts)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCeremonyNotFound),
			errors.Is(err, domain.ErrCeremonyExpired),
			errors.Is(err, domain.ErrCeremonyConsumed),
			errors.Is(err, domain.ErrCeremonyMismatch):
			httputil.Error(w, http.StatusBadRequest, "invalid or expired ceremony")
		case errors.Is(err, domain.ErrAttestationInvalid):
			httputil.Error(w, http.StatusBadRequest, "attestation verification failed")
		case errors.Is(err, domain.ErrCredentialExists):
			httputil.Error(w, http.StatusConflict, "this passkey is already registered")
		case errors.Is(err, domain.ErrUserAlreadyExists):
			httputil.Error(w, http.StatusConflict, "an account with this email already exists")
		default:
			h.logger.Error("failed to finish passkey registration", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	h.writeTokenResponse(w, r, tokens, http.StatusCreated)
}

// LoginBegin starts passkey authentication.
// POST /v1/auth/passkey/login/begin
func (h *Handler) LoginBegin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBegin(w, r)
	if !ok {
		return
	}

	assertion, ceremonyID, err := h.authenticator.BeginPasskeyLogin(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			httputil.Error(w, http.StatusNotFound, "no account found for this email")
		case errors.Is(err, domain.ErrWrongAuthMethod):
			httputil.Error(w, http.StatusBadRequest, "this account uses password authentication")
		case errors.Is(err, domain.ErrPasskeyNotRegistered):
			httputil.Error(w, http.StatusConflict, "no passkey enrolled for this account. complete registration first")
		default:
			h.logger.Error("failed to begin passkey login", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to begin authentication")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, BeginResponse{
		CeremonyID: ceremonyID.String(),
		Options:    assertion,
	})
}

// LoginFinish completes passkey authentication and signs the user in.
// POST /v1/auth/passkey/login/finish
func (h *Handler) LoginFinish(w http.ResponseWriter, r *http.Request) {
	req, ceremonyID, ok := h.decodeFinish(w, r)
	if !ok {
		return
	}

	opts := auth.IssueSessionOpts{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	_, tokens, err := h.authenticator.FinishPasskeyLogin(r.Context(), ceremonyID, req.Email, bytes.NewReader(req.Credential), opts)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCeremonyNotFound),
			errors.Is(err, domain.ErrCeremonyExpired),
			errors.Is(err, domain.ErrCeremonyConsumed),
			errors.Is(err, domain.ErrCeremonyMismatch):
			httputil.Error(w, http.StatusBadRequest, "invalid or expired ceremony")
		case errors.Is(err, domain.ErrAssertionInvalid):
			httputil.Error(w, http.StatusUnauthorized, "assertion verification failed")
		case errors.Is(err, domain.ErrCloneDetected):
			h.logger.Warn("possible cloned authenticator", "email", req.Email)
			httputil.Error(w, http.StatusUnauthorized, "authentication rejected")
		case errors.Is(err, domain.ErrUserNotFound):
			httputil.Error(w, http.StatusNotFound, "no account found for this email")
		case errors.Is(err, domain.ErrWrongAuthMethod):
			httputil.Error(w, http.StatusBadRequest, "this account uses password authentication")
		default:
			h.logger.Error("failed to finish passkey login", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	h.writeTokenResponse(w, r, tokens, http.StatusOK)
}

func (h *Handler) decodeBegin(w http.ResponseWriter, r *http.Request) (BeginRequest, bool) {
	var req BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return req, false
	}
	return req, true
}

func (h *Handler) decodeFinish(w http.ResponseWriter, r *http.Request) (FinishRequest, uuid.UUID, bool) {
	var req FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return req, uuid.Nil, false
	}
	if req.Email == "" || req.CeremonyID == "" || len(req.Credential) == 0 {
		httputil.Error(w, http.StatusBadRequest, "ceremony_id, email, and credential are required")
		return req, uuid.Nil, false
	}
	ceremonyID, err := uuid.Parse(req.CeremonyID)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid ceremony_id")
		return req, uuid.Nil, false
	}
	return req, ceremonyID, true
}

// writeTokenResponse writes tokens as cookies (web) or JSON (mobile).
func (h *Handler) writeTokenResponse(w http.ResponseWriter, r *http.Request, tokens *domain.TokenPair, status int) {
	if httputil.IsMobileClient(r) {
		httputil.JSON(w, status, TokenResponse{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			TokenType:    tokens.TokenType,
			ExpiresIn:    tokens.ExpiresIn,
		})
		return
	}

	httputil.SetAuthCookies(
		w,
		tokens.AccessToken,
		tokens.RefreshToken,
		h.sessionService.AccessTokenTTL(),
		h.sessionService.RefreshTokenTTL(),
		h.cookieConfig,
	)

	httputil.JSON(w, status, TokenResponse{
		TokenType: tokens.TokenType,
		ExpiresIn: tokens.ExpiresIn,
	})
}
