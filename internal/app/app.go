package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/templui/refinekit/internal/backend"
	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/db"
	"github.com/templui/refinekit/internal/kv"
	"github.com/templui/refinekit/internal/repository"
	"github.com/templui/refinekit/internal/service"
	"github.com/templui/refinekit/internal/service/payment"
	"github.com/templui/refinekit/internal/storage"
)

type App struct {
	Cfg                 *config.Config
	Services            config.Services
	DB                  *sqlx.DB
	KV                  *kv.Handle // nil unless REDIS_URL is set
	Backend             *backend.Client
	Storage             storage.Storage // nil unless S3 is configured
	AuthService         *service.AuthService
	UserService         *service.UserService
	SubscriptionService *service.SubscriptionService
	ResetService        *service.PasswordResetService
	OTPService          *service.OTPService
	OAuthService        *service.OAuthService
	BillingService      *service.BillingService
	TokenRepository     repository.ResetTokenRepository
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	services := cfg.Services()

	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var handle *kv.Handle
	if services.RedisConfigured {
		handle = kv.New(cfg.RedisURL)
		// Connect at startup so no request decides the handle's fate.
		_, err = handle.Client(ctx)
		if err != nil {
			slog.Error("redis unavailable at startup", "error", err)
		}
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	subscriptionRepository := repository.NewSubscriptionRepository(database)
	billingEventRepository := repository.NewBillingEventRepository(database)

	var tokenRepository repository.ResetTokenRepository
	switch cfg.TokenStore {
	case "redis":
		tokenRepository = repository.NewRedisResetTokenRepository(handle)
	default:
		tokenRepository = repository.NewResetTokenRepository(database)
	}
	slog.Info("reset token store selected", "store", cfg.TokenStore)

	// Storage
	var fileStorage storage.Storage
	s3Storage, err := storage.New(ctx, cfg)
	switch {
	case err == nil:
		fileStorage = s3Storage
	case errors.Is(err, storage.ErrNotConfigured):
		slog.Info("file storage not configured, downloads disabled")
	default:
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Mail: development logs messages instead of sending them
	var mailer service.Mailer = service.LogMailer{}
	if cfg.ResendAPIKey != "" {
		mailer = service.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom)
	}
	emailService := service.NewEmailService(mailer, cfg.AppName)

	backendClient := backend.New(cfg.BackendURL, cfg.BackendAPIKey, cfg.UpstreamTimeout)
	identityClient := backend.New(cfg.IdentityURL, cfg.BackendAPIKey, cfg.StatusTimeout)

	// Services
	subscriptionService := service.NewSubscriptionService(subscriptionRepository)
	authService := service.NewAuthService(
		userRepository,
		subscriptionService,
		cfg.JWTSecret,
		cfg.SessionTTL,
		cfg.IsProduction(),
	)
	userService := service.NewUserService(userRepository, subscriptionService)
	resetService := service.NewPasswordResetService(
		tokenRepository,
		userRepository,
		emailService,
		cfg.AppURL,
		cfg.ResetTokenTTL,
		services,
	)
	otpService := service.NewOTPService(identityClient, services)
	oauthService := service.NewOAuthService(service.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.AppURL + "/auth/google/callback",
		SuccessPath:  cfg.OAuthSuccessPath,
		ErrorPath:    cfg.OAuthErrorPath,
		Timeout:      cfg.UpstreamTimeout,
		IsProduction: cfg.IsProduction(),
	}, services, userService, authService)

	// Initialize payment provider based on config
	paymentProvider, err := payment.NewProvider(cfg)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize payment provider: %w", err)
	}
	billingService := service.NewBillingService(paymentProvider, userRepository, subscriptionService, billingEventRepository)

	slog.Info("services configured",
		"backend", backendClient.Configured(),
		"identity", services.IdentityConfigured,
		"google", services.GoogleConfigured,
		"payment", billingService.Configured(),
		"redis", services.RedisConfigured,
		"storage", services.StorageConfigured,
	)

	return &App{
		Cfg:                 cfg,
		Services:            services,
		DB:                  database,
		KV:                  handle,
		Backend:             backendClient,
		Storage:             fileStorage,
		AuthService:         authService,
		UserService:         userService,
		SubscriptionService: subscriptionService,
		ResetService:        resetService,
		OTPService:          otpService,
		OAuthService:        oauthService,
		BillingService:      billingService,
		TokenRepository:     tokenRepository,
	}, nil
}

func (a *App) Close() error {
	var errs []error
	if a.KV != nil {
		errs = append(errs, a.KV.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
