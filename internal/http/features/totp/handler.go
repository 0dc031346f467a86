package totp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/giterdone/giterdone/internal/http/middleware"
	"github.com/giterdone/giterdone/internal/httputil"
	"github.com/giterdone/giterdone/pkg/auth"
	"github.com/giterdone/giterdone/pkg/domain"
)

// Handler handles TOTP second-factor management endpoints.
type Handler struct {
	logger         *slog.Logger
	totpService    *auth.TOTPService
	sessionService *auth.SessionService
}

// NewHandler creates a new TOTP handler.
func NewHandler(logger *slog.Logger, totpService *auth.TOTPService, sessionService *auth.SessionService) *Handler {
	return &Handler{
		logger:         logger,
		totpService:    totpService,
		sessionService: sessionService,
	}
}

// EnrollResponse represents a TOTP enrollment response.
type EnrollResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"`
}

// CodeRequest carries a six-digit TOTP code.
type CodeRequest struct {
	Code string `json:"code"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// Enroll generates a pending TOTP secret for the current user.
// POST /v1/me/totp/enroll
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	enrollment, err := h.totpService.Enroll(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrTOTPAlreadyEnabled) {
			httputil.Error(w, http.StatusConflict, "totp is already enabled")
			return
		}
		h.logger.Error("failed to enroll TOTP", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to start totp enrollment")
		return
	}

	httputil.JSON(w, http.StatusOK, EnrollResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCodeDataURI,
	})
}

// Verify confirms the pending secret with a valid code and enables the
// second factor.
// POST /v1/me/totp/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.totpService.VerifyEnroll(r.Context(), userID, req.Code); err != nil {
		switch {
		case errors.Is(err, domain.ErrTOTPAlreadyEnabled):
			httputil.Error(w, http.StatusConflict, "totp is already enabled")
		case errors.Is(err, domain.ErrTOTPNotEnrolled):
			httputil.Error(w, http.StatusBadRequest, "no pending totp enrollment. call enroll first")
		case errors.Is(err, domain.ErrInvalidTOTPCode):
			httputil.Error(w, http.StatusBadRequest, "invalid totp code")
		default:
			h.logger.Error("failed to verify TOTP enrollment", "error", err, "user_id", userID)
			httputil.Error(w, http.StatusInternalServerError, "failed to enable totp")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "TOTP enabled"})
}

// Disable turns the second factor off after one more valid code.
// POST /v1/me/totp/disable
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.totpService.Disable(r.Context(), userID, req.Code); err != nil {
		switch {
		case errors.Is(err, domain.ErrTOTPNotEnabled), errors.Is(err, domain.ErrTOTPNotEnrolled):
			httputil.Error(w, http.StatusBadRequest, "totp is not enabled")
		case errors.Is(err, domain.ErrInvalidTOTPCode):
			httputil.Error(w, http.StatusUnauthorized, "invalid totp code")
		default:
			h.logger.Error("failed to disable TOTP", "error", err, "user_id", userID)
			httputil.Error(w, http.StatusInternalServerError, "failed to disable totp")
		}
		return
	}

	// Revoke all sessions for security
	if err := h.sessionService.RevokeAllSessions(r.Context(), userID); err != nil {
		h.logger.Error("failed to revoke sessions", "error", err, "user_id", userID)
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "TOTP disabled. All sessions revoked."})
}

func decodeCode(w http.ResponseWriter, r *http.Request) (CodeRequest, bool) {
	var req CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Code == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return req, false
	}
	return req, true
}
