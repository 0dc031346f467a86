package method

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/giterdone/giterdone/internal/httputil"
	"github.com/giterdone/giterdone/pkg/auth"
	"github.com/giterdone/giterdone/pkg/domain"
)

// Handler handles the authentication method lookup endpoint.
type Handler struct {
	logger        *slog.Logger
	authenticator *auth.Authenticator
}

// NewHandler creates a new method handler.
func NewHandler(logger *slog.Logger, authenticator *auth.Authenticator) *Handler {
	return &Handler{logger: logger, authenticator: authenticator}
}

// CheckRequest represents a method lookup request.
type CheckRequest struct {
	Email string `json:"email"`
}

// CheckResponse represents a method lookup response.
type CheckResponse struct {
	Method string `json:"method"`
}

// Check reports which authentication method an email uses so the login
// form can route to the right flow. Unlike recovery, this endpoint
// reveals whether an account exists.
// POST /v1/auth/method
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	method, err := h.authenticator.CheckAuthMethod(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidEmail):
			httputil.Error(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, domain.ErrUserNotFound):
			httputil.Error(w, http.StatusNotFound, "no account found for this email")
		default:
			h.logger.Error("failed to check auth method", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "lookup failed")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, CheckResponse{Method: string(method)})
}
