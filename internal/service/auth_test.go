package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/refinekit/internal/model"
)

func TestAuth_SignupAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Signup(ctx, " Grace@Example.com", "password-123", "Grace Brewster Hopper")
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", user.Email)
	assert.Equal(t, "Grace", user.FirstName)
	assert.Equal(t, "Brewster Hopper", user.LastName)

	sub, err := env.subscriptions.Subscription(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPlanFree, sub.PlanID)

	loggedIn, err := env.auth.Login(ctx, "GRACE@example.com", "password-123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	_, err = env.auth.Login(ctx, "grace@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "nobody@example.com", "password-123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.auth.Signup(ctx, "grace@example.com", "password-456", "")
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestAuth_SignupValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Signup(context.Background(), "grace@example.com", "short", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)
}

func TestAuth_OAuthOnlyAccountCannotUsePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.userService.UpsertGoogleUser(ctx, GoogleProfile{ID: "g-1", Email: "oauth@example.com"})
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, "oauth@example.com", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuth_SessionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signup(t, "grace@example.com", "password-123", "")

	token, expiry, err := env.auth.GenerateJWT(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)

	resolved, err := env.auth.UserFromSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	_, err = env.auth.UserFromSession(ctx, token+"x")
	assert.Error(t, err)

	other := NewAuthService(env.users, nil, "other-secret", time.Hour, false)
	_, err = other.UserFromSession(ctx, token)
	assert.Error(t, err)

	env.auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = env.auth.UserFromSession(ctx, token)
	assert.Error(t, err)
}

func TestAuth_SessionCookie(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup(t, "grace@example.com", "password-123", "")

	rec := httptest.NewRecorder()
	token, err := env.auth.StartSession(rec, user)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, SessionCookieName, c.Name)
	assert.Equal(t, token, c.Value)
	assert.Equal(t, "/", c.Path)
	assert.False(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	rec = httptest.NewRecorder()
	env.auth.ClearSessionCookie(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
	assert.Negative(t, cleared[0].MaxAge)
}
