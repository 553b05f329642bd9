package ctxkeys

import (
	"context"

	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/model"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	UserKey   contextKey = "user"
	ConfigKey contextKey = "config"
)

func User(ctx context.Context) *model.User {
	user, _ := ctx.Value(UserKey).(*model.User)
	return user
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

func Config(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(ConfigKey).(*config.Config)
	return cfg
}

func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, ConfigKey, cfg)
}
