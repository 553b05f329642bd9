package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/templui/refinekit/internal/ctxkeys"
	"github.com/templui/refinekit/internal/service"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeader     = "X-CSRF-Token"
	csrfTokenLen   = 32
)

// Endpoints a signed-out browser must reach without having loaded a token first.
var csrfExemptPaths = map[string]bool{
	"/api/auth/signup":                true,
	"/api/auth/login":                 true,
	"/api/auth/forgot-password":       true,
	"/api/auth/reset-password":        true,
	"/api/auth/reset-password/verify": true,
	"/api/auth/otp/request":           true,
	"/api/auth/otp/verify":            true,
}

// CSRFProtection is a double-submit check for cookie-authenticated API calls.
// Safe requests receive a csrf_token cookie; state-changing /api/ requests that
// carry the session cookie must echo it in X-CSRF-Token. Bearer-authenticated
// calls and webhooks are not cookie-driven and pass through.
func CSRFProtection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := getOrGenerateCSRFToken(w, r)

		if !needsCSRFCheck(r) {
			next.ServeHTTP(w, r)
			return
		}

		if !validCSRFToken(token, r.Header.Get(CSRFHeader)) {
			slog.Warn("csrf validation failed",
				"path", r.URL.Path,
				"method", r.Method,
				"ip", getClientIP(r),
			)
			writeError(w, http.StatusForbidden, "Invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func needsCSRFCheck(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	if !strings.HasPrefix(r.URL.Path, "/api/") || csrfExemptPaths[r.URL.Path] {
		return false
	}
	cookie, err := r.Cookie(service.SessionCookieName)
	return err == nil && cookie.Value != ""
}

// getOrGenerateCSRFToken retrieves existing token or generates new one
func getOrGenerateCSRFToken(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && len(cookie.Value) == base64.RawURLEncoding.EncodedLen(csrfTokenLen) {
		return cookie.Value
	}

	token := generateCSRFToken()

	cfg := ctxkeys.Config(r.Context())
	isProduction := cfg != nil && cfg.IsProduction()

	// Readable by client script, which echoes it in the header.
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7, // 7 days
	})

	return token
}

// generateCSRFToken creates cryptographically secure random token
func generateCSRFToken() string {
	bytes := make([]byte, csrfTokenLen)
	_, err := rand.Read(bytes)
	if err != nil {
		panic("failed to generate csrf token: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

// validCSRFToken performs constant-time comparison of tokens
func validCSRFToken(expected, actual string) bool {
	if expected == "" || actual == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
