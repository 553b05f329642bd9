package middleware

import (
	"net/http"
	"strings"

	"github.com/templui/refinekit/internal/ctxkeys"
	"github.com/templui/refinekit/internal/service"
)

// AuthMiddleware resolves the session credential to a user and adds it to the context.
// The credential comes from the session cookie, or a Bearer header for script clients.
// A bad cookie is cleared and the request continues anonymously.
func AuthMiddleware(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := authService.UserFromSession(r.Context(), token)
			if err != nil {
				if fromCookie {
					authService.ClearSessionCookie(w)
				}
				next.ServeHTTP(w, r)
				return
			}

			// Security: Remove password hash from context
			user.PasswordHash = nil

			ctx := ctxkeys.WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects unauthenticated API calls with 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionToken(r *http.Request) (token string, fromCookie bool) {
	cookie, err := r.Cookie(service.SessionCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after), false
	}
	return "", false
}
