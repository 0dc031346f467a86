// Package giterdone provides an embeddable authentication and account
// layer with password, passkey (WebAuthn), and TOTP support.
//
// Setup:
//
//  1. Run the migrations from migrations/ (or call repository.Migrate)
//  2. Create an instance and mount its routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	gd, err := giterdone.New(giterdone.Config{
//	    DB:                db,
//	    JWTSecret:         "your-secret-key-at-least-32-chars",
//	    RPID:              "example.com",
//	    RPOrigin:          "https://example.com",
//	    TOTPEncryptionKey: key, // 32 bytes
//	})
//	if err != nil {
//	    log.Fatal(err) // fails if migrations have not been run
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/auth", gd.Router())
//	http.ListenAndServe(":8080", r)
package giterdone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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

// Config holds the configuration for the embeddable instance.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// JWTSecret signs access tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in access tokens (default: "giterdone").
	JWTIssuer string

	// AccessTokenTTL is the lifetime of access tokens (default: 15 minutes).
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens (default: 7 days).
	RefreshTokenTTL time.Duration

	// RPID and RPOrigin identify the WebAuthn relying party (required for
	// passkey routes). RPName is what authenticator UIs display.
	RPID     string
	RPName   string
	RPOrigin string

	// TOTPEncryptionKey encrypts TOTP secrets at rest (required, 32 bytes).
	TOTPEncryptionKey []byte

	// TOTPIssuer names the account in authenticator apps (default: RPName).
	TOTPIssuer string

	// AppBaseURL is used to build recovery links (default: RPOrigin).
	AppBaseURL string

	// Mailer delivers recovery emails. Without one the recovery endpoint
	// returns the raw token in the response (development only).
	Mailer auth.RecoveryMailer

	// PasswordPolicy overrides the default password policy.
	PasswordPolicy *auth.PasswordPolicy

	// Logger is the structured logger (default: slog JSON to stdout).
	Logger *slog.Logger
}

// Giterdone is the embeddable instance.
type Giterdone struct {
	config          Config
	db              *sql.DB
	usersRepo       *repository.UsersRepository
	todosRepo       *repository.TodosRepository
	passwordService *auth.PasswordService
	passkeyService  *auth.PasskeyService
	totpService     *auth.TOTPService
	sessionService  *auth.SessionService
	recoveryService *auth.RecoveryService
	authenticator   *auth.Authenticator
}

// New creates an instance with the given configuration. Returns an error
// if the required database tables do not exist; run migrations first.
func New(cfg Config) (*Giterdone, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validateSchema(cfg.DB); err != nil {
		return nil, err
	}

	usersRepo := repository.NewUsersRepository(cfg.DB)
	credsRepo := repository.NewPasskeyCredentialsRepository(cfg.DB)
	ceremoniesRepo := repository.NewCeremoniesRepository(cfg.DB)
	recoveryTokensRepo := repository.NewRecoveryTokensRepository(cfg.DB)
	totpSecretsRepo := repository.NewTOTPSecretsRepository(cfg.DB)
	sessionsRepo := repository.NewSessionsRepository(cfg.DB)
	todosRepo := repository.NewTodosRepository(cfg.DB)

	passwordService := auth.NewPasswordService(usersRepo, cfg.PasswordPolicy)

	passkeyService, err := auth.NewPasskeyService(auth.PasskeyConfig{
		RPID:     cfg.RPID,
		RPName:   cfg.RPName,
		RPOrigin: cfg.RPOrigin,
	}, usersRepo, credsRepo, ceremoniesRepo)
	if err != nil {
		return nil, err
	}

	totpService := auth.NewTOTPService(auth.TOTPConfig{
		Issuer:        cfg.TOTPIssuer,
		EncryptionKey: cfg.TOTPEncryptionKey,
	}, usersRepo, totpSecretsRepo)

	sessionService := auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
	}, sessionsRepo, usersRepo)

	recoveryService := auth.NewRecoveryService(auth.RecoveryConfig{
		AppBaseURL: cfg.AppBaseURL,
	}, cfg.Logger, usersRepo, recoveryTokensRepo, cfg.PasswordPolicy, cfg.Mailer)

	authenticator := auth.NewAuthenticator(passwordService, passkeyService, totpService, sessionService, usersRepo)

	return &Giterdone{
		config:          cfg,
		db:              cfg.DB,
		usersRepo:       usersRepo,
		todosRepo:       todosRepo,
		passwordService: passwordService,
		passkeyService:  passkeyService,
		totpService:     totpService,
		sessionService:  sessionService,
		recoveryService: recoveryService,
		authenticator:   authenticator,
	}, nil
}

// Router returns a chi router with all authentication routes. Mount it
// on your main router:
//
//	r := chi.NewRouter()
//	r.Mount("/auth", gd.Router())
//
// Routes:
//
//	POST /register                - password registration
//	POST /login                   - password login (+ optional totp_code)
//	POST /method                  - which auth method an email uses
//	POST /passkey/register/begin  - passkey registration options
//	POST /passkey/register/finish - attestation verification
//	POST /passkey/login/begin     - assertion options
//	POST /passkey/login/finish    - assertion verification
//	POST /recovery/request        - request a recovery token
//	POST /recovery/confirm        - redeem it and switch method
//	POST /refresh                 - rotate the refresh token
//	POST /logout                  - revoke a session
//	POST /logout/all              - revoke all sessions (protected)
//	GET  /me, PATCH /me           - profile (protected)
//	PUT  /me/password             - password change (protected)
//	POST /me/totp/{enroll,verify,disable} (protected)
//
// Rate limiting and security headers are left to the host application;
// the full server in cmd/giterdone shows the complete middleware stack.
func (g *Giterdone) Router() chi.Router {
	r := chi.NewRouter()

	passwordHandler := password.NewHandler(g.config.Logger, g.authenticator, g.passwordService, g.sessionService)
	methodHandler := method.NewHandler(g.config.Logger, g.authenticator)
	passkeyHandler := passkey.NewHandler(g.config.Logger, g.authenticator, g.sessionService)
	recoveryHandler := recovery.NewHandler(g.config.Logger, g.recoveryService, g.sessionService)
	sessionHandler := session.NewHandler(g.sessionService)

	r.Post("/register", passwordHandler.Register)
	r.Post("/login", passwordHandler.Login)
	r.Post("/method", methodHandler.Check)
	r.Post("/passkey/register/begin", passkeyHandler.RegisterBegin)
	r.Post("/passkey/register/finish", passkeyHandler.RegisterFinish)
	r.Post("/passkey/login/begin", passkeyHandler.LoginBegin)
	r.Post("/passkey/login/finish", passkeyHandler.LoginFinish)
	r.Post("/recovery/request", recoveryHandler.Request)
	r.Post("/recovery/confirm", recoveryHandler.Confirm)
	r.Post("/refresh", sessionHandler.Refresh)
	r.Post("/logout", sessionHandler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(g.sessionService))

		r.Post("/logout/all", sessionHandler.LogoutAll)

		meHandler := me.NewHandler(g.config.Logger, g.usersRepo)
		r.Get("/me", meHandler.GetMe)
		r.Patch("/me", meHandler.UpdateMe)
		r.Put("/me/password", passwordHandler.ChangePassword)

		totpHandler := totp.NewHandler(g.config.Logger, g.totpService, g.sessionService)
		r.Post("/me/totp/enroll", totpHandler.Enroll)
		r.Post("/me/totp/verify", totpHandler.Verify)
		r.Post("/me/totp/disable", totpHandler.Disable)
	})

	return r
}

// TodosRouter returns a protected router for the todo resource. Mount
// it wherever you want the todos to live:
//
//	r.Mount("/todos", gd.TodosRouter())
func (g *Giterdone) TodosRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Auth(g.sessionService))

	todosHandler := todos.NewHandler(g.config.Logger, g.todosRepo)
	r.Get("/", todosHandler.List)
	r.Post("/", todosHandler.Create)
	r.Get("/{id}", todosHandler.Get)
	r.Patch("/{id}", todosHandler.Update)
	r.Delete("/{id}", todosHandler.Delete)

	return r
}

// SessionService returns the session service for advanced usage.
func (g *Giterdone) SessionService() *auth.SessionService {
	return g.sessionService
}

// Authenticator returns the auth orchestrator for advanced usage.
func (g *Giterdone) Authenticator() *auth.Authenticator {
	return g.authenticator
}

// AuthMiddleware returns middleware that validates access tokens. Use it
// to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(gd.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (g *Giterdone) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(g.sessionService)
}

// GetUserIDFromContext extracts the user ID from a context. Use after
// AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return middleware.GetUserID(ctx)
}

// HealthHandler returns a simple health check handler.
func (g *Giterdone) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("giterdone: DB is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("giterdone: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("giterdone: JWTSecret must be at least 32 characters")
	}
	if cfg.RPID == "" || cfg.RPOrigin == "" {
		return errors.New("giterdone: RPID and RPOrigin are required")
	}
	if len(cfg.TOTPEncryptionKey) != 32 {
		return errors.New("giterdone: TOTPEncryptionKey must be 32 bytes")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "giterdone"
	}
	if cfg.RPName == "" {
		cfg.RPName = "Giterdone"
	}
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = cfg.RPName
	}
	if cfg.AppBaseURL == "" {
		cfg.AppBaseURL = cfg.RPOrigin
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

// validateSchema checks that the required database tables exist.
func validateSchema(db *sql.DB) error {
	requiredTables := []string{
		"users", "user_passwords", "passkey_credentials", "ceremonies",
		"recovery_tokens", "totp_secrets", "sessions",
	}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow(query, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("giterdone: missing table '%s' - run migrations first (see migrations/)", table)
		}
		if err != nil {
			return fmt.Errorf("giterdone: failed to check schema: %w", err)
		}
	}

	return nil
}
