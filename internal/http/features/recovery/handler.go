package recovery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/giterdone/giterdone/internal/httputil"
	"github.com/giterdone/giterdone/pkg/auth"
	"github.com/giterdone/giterdone/pkg/domain"
)

// Handler handles account recovery endpoints.
type Handler struct {
	logger          *slog.Logger
	recoveryService *auth.RecoveryService
	sessionService  *auth.SessionService
}

// NewHandler creates a new recovery handler.
func NewHandler(logger *slog.Logger, recoveryService *auth.RecoveryService, sessionService *auth.SessionService) *Handler {
	return &Handler{
		logger:          logger,
		recoveryService: recoveryService,
		sessionService:  sessionService,
	}
}

// RequestRequest represents a recovery request.
type RequestRequest struct {
	Email string `json:"email"`
}

// RequestResponse represents a recovery request response. RecoveryToken
// is populated only when no mailer is configured (development).
type RequestResponse struct {
	Message       string `json:"message"`
	RecoveryToken string `json:"recovery_token,omitempty"`
}

// ConfirmRequest represents a recovery confirmation.
type ConfirmRequest struct {
	Token           string `json:"token"`
	NewMethod       string `json:"new_method"`
	Password        string `json:"password,omitempty"`
	PasswordConfirm string `json:"password_confirm,omitempty"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// Request starts account recovery. The response never reveals whether an
// account exists for the email.
// POST /v1/auth/recovery/request
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	var req RequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	devToken, err := h.recoveryService.Request(r.Context(), req.Email)
	if err != nil {
		// Internal failures still return the standard message so the
		// response cannot be used as an account oracle.
		h.logger.Error("recovery request failed", "error", err)
	}

	httputil.JSON(w, http.StatusOK, RequestResponse{
		Message:       auth.RecoveryMessage,
		RecoveryToken: devToken,
	})
}

// Confirm redeems a recovery token and switches the account's
// authentication method. All sessions are revoked afterwards.
// POST /v1/auth/recovery/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Token == "" {
		httputil.Error(w, http.StatusBadRequest, "token is required")
		return
	}
	newMethod := domain.AuthMethod(req.NewMethod)
	if !newMethod.Valid() {
		httputil.Error(w, http.StatusBadRequest, "new_method must be \"password\" or \"passkey\"")
		return
	}

	user, err := h.recoveryService.Confirm(r.Context(), req.Token, newMethod, req.Password, req.PasswordConfirm)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecoveryTokenInvalid):
			httputil.Error(w, http.StatusBadRequest, "invalid recovery token")
		case errors.Is(err, domain.ErrRecoveryTokenExpired):
			httputil.Error(w, http.StatusBadRequest, "recovery token expired")
		case errors.Is(err, domain.ErrRecoveryTokenConsumed):
			httputil.Error(w, http.StatusBadRequest, "recovery token already used")
		case errors.Is(err, domain.ErrPasswordMismatch):
			httputil.Error(w, http.StatusBadRequest, "passwords do not match")
		case errors.Is(err, domain.ErrWeakPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("recovery confirm failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "recovery failed")
		}
		return
	}

	// The old credential is gone; any session issued with it goes too.
	if err := h.sessionService.RevokeAllSessions(r.Context(), user.ID); err != nil {
		h.logger.Error("failed to revoke sessions after recovery", "error", err, "user_id", user.ID)
	}

	h.logger.Info("account recovered", "user_id", user.ID, "new_method", newMethod)

	if newMethod == domain.AuthMethodPasskey {
		httputil.JSON(w, http.StatusOK, MessageResponse{
			Message: "Authentication method switched to passkey. Enroll a passkey via the registration ceremony to sign in.",
		})
		return
	}
	httputil.JSON(w, http.StatusOK, MessageResponse{
		Message: "Authentication method switched to password. Please sign in.",
	})
}
