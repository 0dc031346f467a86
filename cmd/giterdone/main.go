package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giterdone/giterdone/internal/config"
	httpserver "github.com/giterdone/giterdone/internal/http"
	"github.com/giterdone/giterdone/internal/notification"
	"github.com/giterdone/giterdone/pkg/auth"
	"github.com/giterdone/giterdone/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	// Run migrations
	if err := repository.Migrate(context.Background(), db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	usersRepo := repository.NewUsersRepository(db)
	credsRepo := repository.NewPasskeyCredentialsRepository(db)
	ceremoniesRepo := repository.NewCeremoniesRepository(db)
	recoveryTokensRepo := repository.NewRecoveryTokensRepository(db)
	totpSecretsRepo := repository.NewTOTPSecretsRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)
	todosRepo := repository.NewTodosRepository(db)

	// Initialize services
	passwordPolicy := auth.DefaultPasswordPolicy()
	passwordService := auth.NewPasswordService(usersRepo, passwordPolicy)

	passkeyService, err := auth.NewPasskeyService(auth.PasskeyConfig{
		RPID:        cfg.RPID,
		RPName:      cfg.RPName,
		RPOrigin:    cfg.RPOrigin,
		CeremonyTTL: cfg.CeremonyTTL,
	}, usersRepo, credsRepo, ceremoniesRepo)
	if err != nil {
		logger.Error("failed to initialize passkey service", "error", err)
		os.Exit(1)
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

	// Recovery email delivery is optional; without SMTP the recovery
	// endpoint returns the token directly (development only).
	var mailer auth.RecoveryMailer
	if cfg.HasSMTP() {
		mailer = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		logger.Info("email service enabled")
	} else {
		logger.Warn("SMTP not configured; recovery tokens will be returned in responses")
	}

	recoveryService := auth.NewRecoveryService(auth.RecoveryConfig{
		TokenTTL:   cfg.RecoveryTokenTTL,
		AppBaseURL: cfg.AppBaseURL,
	}, logger, usersRepo, recoveryTokensRepo, passwordPolicy, mailer)

	authenticator := auth.NewAuthenticator(passwordService, passkeyService, totpService, sessionService, usersRepo)

	// Create router
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          logger,
		Authenticator:   authenticator,
		PasswordService: passwordService,
		SessionService:  sessionService,
		RecoveryService: recoveryService,
		TOTPService:     totpService,
		UsersRepo:       usersRepo,
		TodosRepo:       todosRepo,
		RateLimitConfig: cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		Validation:      cfg.Validation,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
