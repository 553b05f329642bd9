package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/db"
	"github.com/templui/refinekit/internal/logger"
)

// setup loads configuration the same way the server does and opens the database.
func setup() (*config.Config, *sqlx.DB, error) {
	cfg := config.Load()
	logger.Init(logger.Options{Development: cfg.IsDevelopment()})

	conn, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping(context.Background(), conn, cfg.StatusTimeout)
	if err != nil {
		_ = db.Close(conn)
		return nil, nil, err
	}
	return cfg, conn, nil
}
