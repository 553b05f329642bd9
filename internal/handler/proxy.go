package handler

import (
	"net/http"

	"github.com/templui/refinekit/internal/backend"
	"github.com/templui/refinekit/internal/ctxkeys"
)

// JobsProxy forwards /api/jobs/... to the backend's /jobs/... on behalf of
// the session user.
func JobsProxy(client *backend.Client) http.Handler {
	proxy := client.ReverseProxy(func(r *http.Request) string {
		if user := ctxkeys.User(r.Context()); user != nil {
			return user.ID
		}
		return ""
	})
	return http.StripPrefix("/api", proxy)
}
