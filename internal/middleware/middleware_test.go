package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/ctxkeys"
	"github.com/templui/refinekit/internal/db/dbtest"
	"github.com/templui/refinekit/internal/repository"
	"github.com/templui/refinekit/internal/service"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mark("a"), mark("b"), mark("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestAuthMiddleware(t *testing.T) {
	conn := dbtest.New(t)
	users := repository.NewUserRepository(conn)
	auth := service.NewAuthService(users, nil, "secret", time.Hour, false)
	user, err := auth.Signup(context.Background(), "user@example.com", "password-123", "")
	require.NoError(t, err)
	token, _, err := auth.GenerateJWT(user)
	require.NoError(t, err)

	var seen string
	h := AuthMiddleware(auth)(RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := ctxkeys.User(r.Context())
		seen = u.ID
		assert.Nil(t, u.PasswordHash)
	})))

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: service.SessionCookieName, Value: token})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, user.ID, seen)
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad cookie is cleared", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: service.SessionCookieName, Value: "garbage"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"success":false,"error":"Authentication required"}`, rec.Body.String())

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, service.SessionCookieName, cookies[0].Name)
		assert.Empty(t, cookies[0].Value)
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCSRFProtection(t *testing.T) {
	h := Chain(okHandler(), Config(&config.Config{AppEnv: "development"}), CSRFProtection)
	session := &http.Cookie{Name: service.SessionCookieName, Value: "session"}

	// A safe request hands out the token.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var csrf *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == CSRFCookieName {
			csrf = c
		}
	}
	require.NotNil(t, csrf)
	assert.False(t, csrf.HttpOnly)

	tests := []struct {
		name    string
		path    string
		cookies []*http.Cookie
		header  string
		want    int
	}{
		{"session without header", "/api/billing/checkout", []*http.Cookie{session, csrf}, "", http.StatusForbidden},
		{"session with wrong header", "/api/billing/checkout", []*http.Cookie{session, csrf}, "nope", http.StatusForbidden},
		{"session with matching header", "/api/billing/checkout", []*http.Cookie{session, csrf}, csrf.Value, http.StatusOK},
		{"no session cookie", "/api/billing/checkout", []*http.Cookie{csrf}, "", http.StatusOK},
		{"public auth endpoint", "/api/auth/forgot-password", []*http.Cookie{session}, "", http.StatusOK},
		{"webhook", "/webhooks/payment", []*http.Cookie{session}, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			for _, c := range tt.cookies {
				req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("1.1.1.1"))

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	assert.Empty(t, rl.requests)
	rl.mu.Unlock()
}

func TestRateLimit_Middleware(t *testing.T) {
	h := RateLimit(NewRateLimiter(1, time.Minute))(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", getClientIP(req))

	req.Header.Set("X-Real-IP", "9.9.9.9")
	assert.Equal(t, "9.9.9.9", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "8.8.8.8, 10.0.0.1")
	assert.Equal(t, "8.8.8.8", getClientIP(req))
}

func TestRequestLogging_CapturesStatus(t *testing.T) {
	h := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
