package routes

import (
	"net/http"

	"github.com/templui/refinekit/internal/app"
	"github.com/templui/refinekit/internal/handler"
	"github.com/templui/refinekit/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.AuthService, app.ResetService, app.OTPService)
	oauth := handler.NewOAuthHandler(app.OAuthService, app.AuthService)
	billing := handler.NewBillingHandler(app.BillingService)
	files := handler.NewFileHandler(app.Storage)
	health := handler.NewHealthHandler(app.DB, app.KV, app.Backend, app.Cfg.StatusTimeout)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Health)

	// Auth - credential endpoints (rate limited per client IP)
	rateLimited := middleware.RateLimitAuth()
	limit := func(h http.HandlerFunc) http.Handler { return rateLimited(h) }

	mux.Handle("POST /api/auth/signup", limit(auth.Signup))
	mux.Handle("POST /api/auth/login", limit(auth.Login))
	mux.HandleFunc("POST /api/auth/logout", auth.Logout)

	// Password reset
	mux.Handle("POST /api/auth/forgot-password", limit(auth.ForgotPassword))
	mux.Handle("POST /api/auth/reset-password/verify", limit(auth.VerifyResetToken))
	mux.Handle("POST /api/auth/reset-password", limit(auth.ResetPassword))

	// OTP reset (identity service)
	mux.Handle("POST /api/auth/otp/request", limit(auth.RequestOTP))
	mux.Handle("POST /api/auth/otp/verify", limit(auth.VerifyOTP))

	// OAuth
	mux.Handle("GET /auth/google", limit(oauth.GoogleAuth))
	mux.Handle("GET /auth/google/callback", limit(oauth.GoogleCallback))

	// Payment webhooks (signature verified, no session)
	mux.HandleFunc("POST /webhooks/payment", billing.Webhook)

	// ============================================================================
	// SESSION ROUTES
	// ============================================================================

	mux.Handle("GET /api/auth/me", middleware.RequireSession(http.HandlerFunc(auth.Me)))
	mux.Handle("POST /api/billing/checkout", middleware.RequireSession(http.HandlerFunc(billing.CreateCheckout)))
	mux.Handle("GET /api/files/{key...}", middleware.RequireSession(http.HandlerFunc(files.Download)))
	mux.Handle("/api/jobs/", middleware.RequireSession(handler.JobsProxy(app.Backend)))

	return middleware.Chain(mux,
		middleware.RequestLogging,
		middleware.Config(app.Cfg),
		middleware.AuthMiddleware(app.AuthService),
		middleware.CSRFProtection,
	)
}
