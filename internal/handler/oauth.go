package handler

import (
	"log/slog"
	"net/http"

	"github.com/templui/refinekit/internal/service"
)

type OAuthHandler struct {
	oauthService *service.OAuthService
	authService  *service.AuthService
}

func NewOAuthHandler(oauthService *service.OAuthService, authService *service.AuthService) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
		authService:  authService,
	}
}

// GoogleAuth starts the flow. A caller-supplied state is honored so a client
// can correlate the round trip; otherwise a random one is minted.
func (h *OAuthHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		var err error
		state, err = service.NewOAuthState()
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to generate oauth state", "error", err)
			http.Redirect(w, r, h.oauthService.RedirectTarget(&service.CallbackResult{Outcome: service.OAuthSessionFailed}), http.StatusFound)
			return
		}
	}

	h.oauthService.SetStateCookie(w, state)
	http.Redirect(w, r, h.oauthService.AuthURL(state), http.StatusFound)
}

// GoogleCallback finishes the flow. The state cookie is cleared whatever the outcome.
func (h *OAuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	}
	if cookie, err := r.Cookie(service.OAuthStateCookie); err == nil {
		params.CookieState = cookie.Value
	}

	h.oauthService.ClearStateCookie(w)

	result := h.oauthService.Callback(r.Context(), params)
	target := h.oauthService.RedirectTarget(result)
	if result.Outcome == service.OAuthSucceeded {
		h.authService.SetSessionCookie(w, result.Session, result.SessionExpiry)
	} else {
		slog.InfoContext(r.Context(), "google sign-in did not complete", "outcome", result.Outcome.String())
	}

	http.Redirect(w, r, target, http.StatusFound)
}
