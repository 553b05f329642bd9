package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string `env:"APP_NAME" envDefault:"Refinekit"`
	AppEnv  string `env:"APP_ENV"` // Required: 'development' or 'production'
	AppURL  string `env:"APP_URL"` // Required: base URL for reset links and OAuth redirects
	Port    string `env:"PORT" envDefault:"8090"`

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBConnection string `env:"DB_CONNECTION" envDefault:"./data/refinekit.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"`

	// Security
	JWTSecret     string        `env:"JWT_SECRET"` // Required
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`   // 7 days
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"` // 1 hour

	// Reset token store: "sql" (default) or "redis"
	TokenStore string `env:"TOKEN_STORE" envDefault:"sql"`
	RedisURL   string `env:"REDIS_URL"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	OAuthSuccessPath   string `env:"OAUTH_SUCCESS_PATH" envDefault:"/auth/complete"`
	OAuthErrorPath     string `env:"OAUTH_ERROR_PATH" envDefault:"/"`

	// Refinement backend and identity (OTP) service
	BackendURL      string        `env:"BACKEND_URL"`
	BackendAPIKey   string        `env:"BACKEND_API_KEY"`
	IdentityURL     string        `env:"IDENTITY_URL"` // Defaults to BACKEND_URL
	StatusTimeout   time.Duration `env:"STATUS_TIMEOUT" envDefault:"5s"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`

	// Email
	EmailFrom    string `env:"EMAIL_FROM" envDefault:"noreply@example.com"`
	ResendAPIKey string `env:"RESEND_API_KEY"`

	// Payment
	PaymentProvider string `env:"PAYMENT_PROVIDER"` // "polar", "stripe" or empty (billing disabled)
	// Payment - Polar
	PolarAPIKey              string `env:"POLAR_API_KEY"`
	PolarWebhookSecret       string `env:"POLAR_WEBHOOK_SECRET"`
	PolarSandboxMode         bool   `env:"POLAR_SANDBOX_MODE"`
	PolarProductIDProMonthly string `env:"POLAR_PRODUCT_ID_PRO_MONTHLY"`
	PolarProductIDProYearly  string `env:"POLAR_PRODUCT_ID_PRO_YEARLY"`
	// Payment - Stripe
	StripeSecretKey         string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret     string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePriceIDProMonthly string `env:"STRIPE_PRICE_ID_PRO_MONTHLY"`
	StripePriceIDProYearly  string `env:"STRIPE_PRICE_ID_PRO_YEARLY"`

	// Observability (optional)
	SentryDSN string `env:"SENTRY_DSN"`

	// Storage (S3-compatible, optional: enables the download proxy)
	S3Region        string        `env:"S3_REGION"`
	S3Bucket        string        `env:"S3_BUCKET"`
	S3AccessKey     string        `env:"S3_ACCESS_KEY"`
	S3SecretKey     string        `env:"S3_SECRET_KEY"`
	S3Endpoint      string        `env:"S3_ENDPOINT"`                        // Optional: for S3-compatible services (MinIO, R2, etc.)
	S3PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"15m"` // Expiry for download links
}

// Services is the startup-time decision about which collaborators are available.
// It is computed once and injected, so no service inspects the environment per call.
type Services struct {
	IdentityConfigured bool
	GoogleConfigured   bool
	RedisConfigured    bool
	StorageConfigured  bool

	// ExposeResetTokens returns raw reset tokens in API responses instead of emailing them.
	// Only ever true in development.
	ExposeResetTokens bool
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := Parse()
	if err != nil {
		slog.Error("config invalid", "error", err)
		os.Exit(1)
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// Parse reads the configuration from the process environment and checks required keys.
func Parse() (*Config, error) {
	cfg := &Config{}
	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	var missing []string
	if cfg.AppEnv == "" {
		missing = append(missing, "APP_ENV")
	}
	if cfg.AppURL == "" {
		missing = append(missing, "APP_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required env vars missing: %s", strings.Join(missing, ", "))
	}

	if cfg.AppEnv != "development" && cfg.AppEnv != "production" {
		return nil, fmt.Errorf("APP_ENV must be 'development' or 'production', got %q", cfg.AppEnv)
	}

	if cfg.TokenStore != "sql" && cfg.TokenStore != "redis" {
		return nil, fmt.Errorf("TOKEN_STORE must be 'sql' or 'redis', got %q", cfg.TokenStore)
	}
	if cfg.TokenStore == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("TOKEN_STORE=redis requires REDIS_URL")
	}

	if cfg.IdentityURL == "" {
		cfg.IdentityURL = cfg.BackendURL
	}
	cfg.AppURL = strings.TrimSuffix(cfg.AppURL, "/")

	return cfg, nil
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows email to fall back to log mode for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) Services() Services {
	return Services{
		IdentityConfigured: c.IdentityURL != "" && c.BackendAPIKey != "",
		GoogleConfigured:   c.GoogleClientID != "" && c.GoogleClientSecret != "",
		RedisConfigured:    c.RedisURL != "",
		StorageConfigured:  c.S3Bucket != "" && c.S3Region != "",
		ExposeResetTokens:  c.IsDevelopment(),
	}
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
// Safe to expose in ctx and client-facing contexts.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName: c.AppName,
		AppEnv:  c.AppEnv,
		AppURL:  c.AppURL,
		Port:    c.Port,

		EmailFrom: c.EmailFrom,

		GoogleClientID:   c.GoogleClientID,
		OAuthSuccessPath: c.OAuthSuccessPath,
		OAuthErrorPath:   c.OAuthErrorPath,

		PaymentProvider: c.PaymentProvider,
	}
}
