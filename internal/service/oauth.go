package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	OAuthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10 minutes

	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// OAuthOutcome is the terminal state of one Google callback.
type OAuthOutcome int

const (
	OAuthSucceeded OAuthOutcome = iota
	OAuthProviderError
	OAuthCSRFMismatch
	OAuthMissingCode
	OAuthNotConfigured
	OAuthTokenExchangeFailed
	OAuthProfileFetchFailed
	OAuthIdentityUpsertFailed
	OAuthSessionFailed
)

func (o OAuthOutcome) String() string {
	switch o {
	case OAuthSucceeded:
		return "succeeded"
	case OAuthProviderError:
		return "provider_error"
	case OAuthCSRFMismatch:
		return "csrf_mismatch"
	case OAuthMissingCode:
		return "missing_code"
	case OAuthNotConfigured:
		return "not_configured"
	case OAuthTokenExchangeFailed:
		return "token_exchange_failed"
	case OAuthProfileFetchFailed:
		return "profile_fetch_failed"
	case OAuthIdentityUpsertFailed:
		return "identity_upsert_failed"
	case OAuthSessionFailed:
		return "session_failed"
	default:
		return fmt.Sprintf("OAuthOutcome(%d)", int(o))
	}
}

// Message is the user-safe text shown on the error landing page.
func (o OAuthOutcome) Message() string {
	switch o {
	case OAuthSucceeded:
		return ""
	case OAuthProviderError:
		return "Google sign-in was cancelled or failed"
	case OAuthCSRFMismatch:
		return "Invalid state parameter"
	case OAuthMissingCode:
		return "No authorization code received"
	case OAuthNotConfigured:
		return "Google sign-in is not configured"
	case OAuthTokenExchangeFailed:
		return "Failed to exchange authorization code"
	case OAuthProfileFetchFailed:
		return "Failed to fetch user info"
	case OAuthIdentityUpsertFailed:
		return "Failed to create or update user"
	case OAuthSessionFailed:
		return "Failed to start session"
	default:
		return "Google sign-in failed"
	}
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	SuccessPath  string
	ErrorPath    string
	Timeout      time.Duration
	IsProduction bool

	// Zero values mean Google's production endpoints.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// CallbackParams is what the callback request carried.
type CallbackParams struct {
	Code        string
	State       string
	Error       string
	CookieState string
}

type CallbackResult struct {
	Outcome       OAuthOutcome
	User          *model.User
	Session       string
	SessionExpiry time.Time

	// landing is the success redirect, built before the outcome is reported
	// so a succeeded result always has somewhere to go.
	landing string
}

type OAuthService struct {
	oauth        *oauth2.Config
	userInfoURL  string
	configured   bool
	successPath  string
	errorPath    string
	timeout      time.Duration
	isProduction bool
	httpClient   *http.Client
	userService  *UserService
	authService  *AuthService
}

func NewOAuthService(cfg OAuthConfig, services config.Services, userService *UserService, authService *AuthService) *OAuthService {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	// Client credentials go in the form body, not basic auth.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OAuthService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL:  userInfoURL,
		configured:   services.GoogleConfigured,
		successPath:  cfg.SuccessPath,
		errorPath:    cfg.ErrorPath,
		timeout:      timeout,
		isProduction: cfg.IsProduction,
		httpClient:   &http.Client{Timeout: timeout},
		userService:  userService,
		authService:  authService,
	}
}

// NewOAuthState returns 32 random bytes, base64url encoded.
func NewOAuthState() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthURL is the Google consent screen URL for state.
func (s *OAuthService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (s *OAuthService) SetStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   oauthStateMaxAge,
	})
}

func (s *OAuthService) ClearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Callback runs the authorization-code flow to a terminal outcome.
// Checks run in a fixed order and the cheap local ones never touch the network.
func (s *OAuthService) Callback(ctx context.Context, p CallbackParams) *CallbackResult {
	if p.Error != "" {
		slog.WarnContext(ctx, "google oauth provider error", "error", p.Error)
		return &CallbackResult{Outcome: OAuthProviderError}
	}

	if p.State == "" || p.CookieState == "" ||
		subtle.ConstantTimeCompare([]byte(p.State), []byte(p.CookieState)) != 1 {
		slog.WarnContext(ctx, "google oauth state validation failed", "has_cookie", p.CookieState != "")
		return &CallbackResult{Outcome: OAuthCSRFMismatch}
	}

	if p.Code == "" {
		slog.WarnContext(ctx, "google oauth callback missing code")
		return &CallbackResult{Outcome: OAuthMissingCode}
	}

	if !s.configured {
		slog.WarnContext(ctx, "google oauth callback but client credentials are not configured")
		return &CallbackResult{Outcome: OAuthNotConfigured}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := s.exchange(ctx, p.Code)
	if err != nil {
		return &CallbackResult{Outcome: OAuthTokenExchangeFailed}
	}

	profile, err := s.fetchProfile(ctx, token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get google user info", "error", err)
		return &CallbackResult{Outcome: OAuthProfileFetchFailed}
	}

	user, err := s.userService.UpsertGoogleUser(ctx, *profile)
	if err != nil {
		slog.ErrorContext(ctx, "oauth user upsert failed", "error", err)
		return &CallbackResult{Outcome: OAuthIdentityUpsertFailed}
	}

	session, expiry, err := s.authService.GenerateJWT(user)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate JWT", "error", err, "user_id", user.ID)
		return &CallbackResult{Outcome: OAuthSessionFailed, User: user}
	}

	landing, err := s.successTarget(user, session)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build oauth landing", "error", err, "user_id", user.ID)
		return &CallbackResult{Outcome: OAuthSessionFailed, User: user}
	}

	slog.InfoContext(ctx, "user logged in with google oauth", "user_id", user.ID)
	return &CallbackResult{
		Outcome:       OAuthSucceeded,
		User:          user,
		Session:       session,
		SessionExpiry: expiry,
		landing:       landing,
	}
}

// successTarget carries the session and profile in the fragment so they never reach server logs.
func (s *OAuthService) successTarget(user *model.User, session string) (string, error) {
	userJSON, err := json.Marshal(user.Public())
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	fragment := url.Values{
		"token": {session},
		"user":  {string(userJSON)},
	}
	return s.successPath + "#" + fragment.Encode(), nil
}

func (s *OAuthService) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			// Upstream body is for diagnostics only.
			slog.ErrorContext(ctx, "google oauth token exchange failed",
				"status", retrieveErr.Response.StatusCode,
				"body", string(retrieveErr.Body))
		} else {
			slog.ErrorContext(ctx, "google oauth token exchange failed", "error", err)
		}
		return nil, err
	}
	return token, nil
}

func (s *OAuthService) fetchProfile(ctx context.Context, token *oauth2.Token) (*GoogleProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var profile GoogleProfile
	err = json.NewDecoder(resp.Body).Decode(&profile)
	if err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return nil, errors.New("userinfo missing id or email")
	}
	return &profile, nil
}

// RedirectTarget is the single mapping from outcome to where the browser goes next.
// A result that claims success without a landing built by Callback is treated as a session failure.
func (s *OAuthService) RedirectTarget(result *CallbackResult) string {
	if result.Outcome == OAuthSucceeded {
		if result.landing != "" {
			return result.landing
		}
		result = &CallbackResult{Outcome: OAuthSessionFailed}
	}

	target, err := url.Parse(s.errorPath)
	if err != nil {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set("error", result.Outcome.Message())
	q.Set("login", "1")
	target.RawQuery = q.Encode()
	return target.String()
}
