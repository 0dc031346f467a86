package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giterdone/giterdone/internal/config"
	"github.com/giterdone/giterdone/internal/http/features/me"
	"github.com/giterdone/giterdone/internal/http/features/method"
	"github.com/giterdone/giterdone/internal/http/features/passkey"
	"github.com/giterdone/giterdone/internal/http/features/password"
	"github.com/giterdone/giterdone/internal/http/features/recovery"
	"github.com/giterdone/giterdone/internal/http/features/session"
	"github.com/giterdone/giterdone/internal/http/features/todos"
	"github.com/giterdone/giterdone/internal/http/features/totp"
	"github.com/giterdone/giterdone/internal/http/middleware"
	"github.com/giterdone/giterdone/internal/httputil"
	"github.com/giterdone/giterdone/pkg/auth"
	"github.com/giterdone/giterdone/pkg/repository"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Authenticator   *auth.Authenticator
	PasswordService *auth.PasswordService
	SessionService  *auth.SessionService
	RecoveryService *auth.RecoveryService
	TOTPService     *auth.TOTPService
	UsersRepo       *repository.UsersRepository
	TodosRepo       *repository.TodosRepository
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Create rate limiters for different endpoint types
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)

	// Password registration and login
	passwordHandler := password.NewHandler(cfg.Logger, cfg.Authenticator, cfg.PasswordService, cfg.SessionService)
	methodHandler := method.NewHandler(cfg.Logger, cfg.Authenticator)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["auth"])
		r.Post("/v1/auth/register", passwordHandler.Register)
		r.Post("/v1/auth/login", passwordHandler.Login)
		r.Post("/v1/auth/method", methodHandler.Check)
	})

	// Passkey ceremonies
	passkeyHandler := passkey.NewHandler(cfg.Logger, cfg.Authenticator, cfg.SessionService)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["auth"])
		r.Post("/v1/auth/passkey/register/begin", passkeyHandler.RegisterBegin)
		r.Post("/v1/auth/passkey/register/finish", passkeyHandler.RegisterFinish)
		r.Post("/v1/auth/passkey/login/begin", passkeyHandler.LoginBegin)
		r.Post("/v1/auth/passkey/login/finish", passkeyHandler.LoginFinish)
	})

	// Account recovery
	recoveryHandler := recovery.NewHandler(cfg.Logger, cfg.RecoveryService, cfg.SessionService)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["recovery"])
		r.Post("/v1/auth/recovery/request", recoveryHandler.Request)
		r.Post("/v1/auth/recovery/confirm", recoveryHandler.Confirm)
	})

	// Sessions
	sessionHandler := session.NewHandler(cfg.SessionService)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["refresh"])
		r.Post("/v1/auth/refresh", sessionHandler.Refresh)
	})
	r.Post("/v1/auth/logout", sessionHandler.Logout)
	r.With(middleware.Auth(cfg.SessionService)).Post("/v1/auth/logout/all", sessionHandler.LogoutAll)

	// Profile and second factor
	meHandler := me.NewHandler(cfg.Logger, cfg.UsersRepo)
	totpHandler := totp.NewHandler(cfg.Logger, cfg.TOTPService, cfg.SessionService)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.SessionService))
		r.Use(rateLimiters["profile"])
		r.Get("/v1/me", meHandler.GetMe)
		r.Patch("/v1/me", meHandler.UpdateMe)
		r.Put("/v1/me/password", passwordHandler.ChangePassword)
		r.Post("/v1/me/totp/enroll", totpHandler.Enroll)
		r.Post("/v1/me/totp/verify", totpHandler.Verify)
		r.Post("/v1/me/totp/disable", totpHandler.Disable)
	})

	// Todos
	todosHandler := todos.NewHandler(cfg.Logger, cfg.TodosRepo)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.SessionService))
		r.Use(rateLimiters["profile"])
		r.Get("/v1/todos", todosHandler.List)
		r.Post("/v1/todos", todosHandler.Create)
		r.Get("/v1/todos/{id}", todosHandler.Get)
		r.Patch("/v1/todos/{id}", todosHandler.Update)
		r.Delete("/v1/todos/{id}", todosHandler.Delete)
	})

	return r
}
