package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/refinekit/internal/backend"
	"github.com/templui/refinekit/internal/db"
	"github.com/templui/refinekit/internal/kv"
	"golang.org/x/sync/errgroup"
)

type HealthHandler struct {
	db      *sqlx.DB
	kv      *kv.Handle
	backend *backend.Client
	timeout time.Duration
}

// NewHealthHandler checks the database always; the Redis handle and backend
// only when they are configured (nil / unconfigured are skipped).
func NewHealthHandler(conn *sqlx.DB, handle *kv.Handle, client *backend.Client, timeout time.Duration) *HealthHandler {
	return &HealthHandler{db: conn, kv: handle, backend: client, timeout: timeout}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{}
	results := make(chan [2]string, 3)

	// Every check runs to completion so the report is complete.
	var g errgroup.Group
	g.Go(func() error {
		return report(results, "database", db.Ping(ctx, h.db, h.timeout))
	})
	if h.kv != nil {
		g.Go(func() error {
			return report(results, "redis", h.kv.Ping(ctx))
		})
	}
	if h.backend.Configured() {
		g.Go(func() error {
			return report(results, "backend", h.backend.Health(ctx))
		})
	}

	err := g.Wait()
	close(results)
	for res := range results {
		checks[res[0]] = res[1]
	}

	if err != nil {
		slog.WarnContext(r.Context(), "health check failed", "error", err, "checks", checks)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": checks})
}

func report(results chan<- [2]string, name string, err error) error {
	if err != nil {
		results <- [2]string{name, err.Error()}
		return err
	}
	results <- [2]string{name, "ok"}
	return nil
}
