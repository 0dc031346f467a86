package me

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/giterdone/giterdone/internal/http/middleware"
	"github.com/giterdone/giterdone/internal/httputil"
	"github.com/giterdone/giterdone/pkg/domain"
	"github.com/giterdone/giterdone/pkg/repository"
)

// Handler handles user profile endpoints.
type Handler struct {
	logger *slog.Logger
	users  *repository.UsersRepository
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, users *repository.UsersRepository) *Handler {
	return &Handler{logger: logger, users: users}
}

// UserResponse represents the user profile response.
type UserResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	AuthMethod  string  `json:"auth_method"`
	TOTPEnabled bool    `json:"totp_enabled"`
	Name        *string `json:"name,omitempty"`
}

// UpdateRequest represents a profile update request.
type UpdateRequest struct {
	Name *string `json:"name,omitempty"`
}

func userResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:          user.ID.String(),
		Email:       user.Email,
		AuthMethod:  string(user.AuthMethod),
		TOTPEnabled: user.TOTPEnabled,
		Name:        user.Name,
	}
}

// GetMe returns the current user's profile.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		httputil.Error(w, http.StatusNotFound, "user not found")
		return
	}

	httputil.JSON(w, http.StatusOK, userResponse(user))
}

// UpdateMe updates the current user's display name. The email is the
// account identifier and cannot be changed here.
// PATCH /v1/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		if err := h.users.UpdateName(r.Context(), userID, req.Name); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				httputil.Error(w, http.StatusNotFound, "user not found")
				return
			}
			h.logger.Error("failed to update profile", "error", err, "user_id", userID)
			httputil.Error(w, http.StatusInternalServerError, "failed to update profile")
			return
		}
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		httputil.Error(w, http.StatusNotFound, "user not found")
		return
	}

	httputil.JSON(w, http.StatusOK, userResponse(user))
}
