package middleware

import (
	"net/http"

	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/ctxkeys"
)

// Config middleware adds the sanitized app configuration to the request context.
// Secrets such as JWTSecret and provider keys are excluded.
func Config(cfg *config.Config) func(http.Handler) http.Handler {
	safe := cfg.Sanitized()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ctxkeys.WithConfig(r.Context(), safe)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
