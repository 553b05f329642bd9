// Package dbtest opens throwaway migrated sqlite databases for package tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/templui/refinekit/internal/db"
)

// New returns a migrated sqlite database in a temp directory, closed on cleanup.
// A file is used rather than :memory: because the pool opens several connections.
func New(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	conn, err := db.Init("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	err = db.RunMigrations(context.Background(), conn.DB, "sqlite")
	require.NoError(t, err)

	return conn
}
