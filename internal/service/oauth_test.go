package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/refinekit/internal/config"
	"golang.org/x/oauth2"
)

type fakeGoogle struct {
	tokenCalls    atomic.Int32
	tokenStatus   int
	profileStatus int
	profile       GoogleProfile
}

func (f *fakeGoogle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		if r.FormValue("client_secret") != "client-secret" || r.FormValue("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.profileStatus != 0 {
			w.WriteHeader(f.profileStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.profile)
	})
	return mux
}

func newOAuthService(t *testing.T, env *testEnv, fake *fakeGoogle, clientID string) *OAuthService {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	return NewOAuthService(OAuthConfig{
		ClientID:     clientID,
		ClientSecret: "client-secret",
		RedirectURL:  "http://app.test/auth/google/callback",
		SuccessPath:  "/auth/complete",
		ErrorPath:    "/",
		Timeout:      5 * time.Second,
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		},
		UserInfoURL: srv.URL + "/userinfo",
	}, config.Services{GoogleConfigured: clientID != ""}, env.userService, env.auth)
}

func defaultFakeGoogle() *fakeGoogle {
	return &fakeGoogle{profile: GoogleProfile{
		ID:      "google-1",
		Email:   "Ada@Example.com",
		Name:    "Ada King Lovelace",
		Picture: "https://example.com/ada.png",
	}}
}

func TestOAuth_AuthURL(t *testing.T) {
	env := newTestEnv(t)
	svc := newOAuthService(t, env, defaultFakeGoogle(), "client-id")

	u, err := url.Parse(svc.AuthURL("state-xyz"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://app.test/auth/google/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "state-xyz", q.Get("state"))
}

func TestOAuth_CallbackRejectsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		params   CallbackParams
		want     OAuthOutcome
	}{
		{"provider error wins", "client-id", CallbackParams{Error: "access_denied", State: "a", CookieState: "b"}, OAuthProviderError},
		{"state mismatch", "client-id", CallbackParams{Code: "good-code", State: "a", CookieState: "b"}, OAuthCSRFMismatch},
		{"state is a prefix of cookie", "client-id", CallbackParams{Code: "good-code", State: "abc", CookieState: "abcd"}, OAuthCSRFMismatch},
		{"cookie is a prefix of state", "client-id", CallbackParams{Code: "good-code", State: "abcd", CookieState: "abc"}, OAuthCSRFMismatch},
		{"state differs in case", "client-id", CallbackParams{Code: "good-code", State: "ABC", CookieState: "abc"}, OAuthCSRFMismatch},
		{"missing cookie", "client-id", CallbackParams{Code: "good-code", State: "a"}, OAuthCSRFMismatch},
		{"missing state", "client-id", CallbackParams{Code: "good-code", CookieState: "a"}, OAuthCSRFMismatch},
		{"missing code", "client-id", CallbackParams{State: "a", CookieState: "a"}, OAuthMissingCode},
		{"not configured", "", CallbackParams{Code: "good-code", State: "a", CookieState: "a"}, OAuthNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			fake := defaultFakeGoogle()
			svc := newOAuthService(t, env, fake, tt.clientID)

			res := svc.Callback(context.Background(), tt.params)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Zero(t, fake.tokenCalls.Load())
		})
	}
}

func TestOAuth_CallbackIsIdempotentPerIdentity(t *testing.T) {
	env := newTestEnv(t)
	fake := defaultFakeGoogle()
	svc := newOAuthService(t, env, fake, "client-id")
	ctx := context.Background()
	params := CallbackParams{Code: "good-code", State: "s", CookieState: "s"}

	first := svc.Callback(ctx, params)
	require.Equal(t, OAuthSucceeded, first.Outcome)
	second := svc.Callback(ctx, params)
	require.Equal(t, OAuthSucceeded, second.Outcome)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "ada@example.com", first.User.Email)
	assert.Equal(t, "Ada", first.User.FirstName)
	assert.Equal(t, "King Lovelace", first.User.LastName)
	assert.NotEmpty(t, first.Session)

	user, err := env.auth.UserFromSession(ctx, second.Session)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, user.ID)
}

func TestOAuth_CallbackLinksExistingEmailAccount(t *testing.T) {
	env := newTestEnv(t)
	existing := env.signup(t, "ada@example.com", "password-123", "Ada")
	svc := newOAuthService(t, env, defaultFakeGoogle(), "client-id")

	res := svc.Callback(context.Background(), CallbackParams{Code: "good-code", State: "s", CookieState: "s"})
	require.Equal(t, OAuthSucceeded, res.Outcome)
	assert.Equal(t, existing.ID, res.User.ID)

	linked, err := env.users.ByGoogleID(context.Background(), "google-1")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, linked.ID)
}

func TestOAuth_CallbackUpstreamFailures(t *testing.T) {
	t.Run("token exchange", func(t *testing.T) {
		env := newTestEnv(t)
		fake := defaultFakeGoogle()
		fake.tokenStatus = http.StatusBadRequest
		svc := newOAuthService(t, env, fake, "client-id")

		res := svc.Callback(context.Background(), CallbackParams{Code: "good-code", State: "s", CookieState: "s"})
		assert.Equal(t, OAuthTokenExchangeFailed, res.Outcome)
		assert.Equal(t, int32(1), fake.tokenCalls.Load())
	})

	t.Run("profile fetch", func(t *testing.T) {
		env := newTestEnv(t)
		fake := defaultFakeGoogle()
		fake.profileStatus = http.StatusInternalServerError
		svc := newOAuthService(t, env, fake, "client-id")

		res := svc.Callback(context.Background(), CallbackParams{Code: "good-code", State: "s", CookieState: "s"})
		assert.Equal(t, OAuthProfileFetchFailed, res.Outcome)
	})
}

func TestOAuth_RedirectTarget(t *testing.T) {
	env := newTestEnv(t)
	svc := newOAuthService(t, env, defaultFakeGoogle(), "client-id")

	target := svc.RedirectTarget(&CallbackResult{Outcome: OAuthCSRFMismatch})
	assert.Equal(t, "/?error=Invalid+state+parameter&login=1", target)

	res := svc.Callback(context.Background(), CallbackParams{Code: "good-code", State: "s", CookieState: "s"})
	require.Equal(t, OAuthSucceeded, res.Outcome)

	target = svc.RedirectTarget(res)
	require.True(t, strings.HasPrefix(target, "/auth/complete#"), target)

	fragment, err := url.ParseQuery(strings.TrimPrefix(target, "/auth/complete#"))
	require.NoError(t, err)
	assert.Equal(t, res.Session, fragment.Get("token"))

	var user map[string]any
	require.NoError(t, json.Unmarshal([]byte(fragment.Get("user")), &user))
	assert.Equal(t, "ada@example.com", user["email"])
}

func TestOAuth_ConfiguredComesFromServices(t *testing.T) {
	env := newTestEnv(t)
	fake := defaultFakeGoogle()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc := NewOAuthService(OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		UserInfoURL:  srv.URL + "/userinfo",
	}, config.Services{GoogleConfigured: false}, env.userService, env.auth)

	res := svc.Callback(context.Background(), CallbackParams{Code: "good-code", State: "s", CookieState: "s"})
	assert.Equal(t, OAuthNotConfigured, res.Outcome)
	assert.Zero(t, fake.tokenCalls.Load())
}

func TestOAuth_RedirectTarget_SuccessWithoutLanding(t *testing.T) {
	env := newTestEnv(t)
	svc := newOAuthService(t, env, defaultFakeGoogle(), "client-id")

	target := svc.RedirectTarget(&CallbackResult{Outcome: OAuthSucceeded, Session: "jwt"})
	assert.Equal(t, "/?error=Failed+to+start+session&login=1", target)
}

func TestOAuthOutcome_EveryFailureHasMessage(t *testing.T) {
	assert.Empty(t, OAuthSucceeded.Message())
	for o := OAuthProviderError; o <= OAuthSessionFailed; o++ {
		assert.NotEmpty(t, o.Message(), o.String())
		assert.NotContains(t, o.String(), "OAuthOutcome(")
	}
}
