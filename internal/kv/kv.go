// Package kv owns the process-wide Redis connection.
//
// The handle is initialized at most once. If that first attempt fails the
// handle stays broken and every caller gets ErrUnavailable immediately,
// instead of each request re-dialing a server that is known to be down.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrUnavailable = errors.New("redis unavailable")

const dialTimeout = 5 * time.Second

type Handle struct {
	url string

	once   sync.Once
	mu     sync.Mutex
	client *redis.Client
	err    error
	closed bool
}

func New(url string) *Handle {
	return &Handle{url: url}
}

// NewFromClient wraps an already connected client; used by tests and tools.
func NewFromClient(client *redis.Client) *Handle {
	h := &Handle{client: client}
	h.once.Do(func() {})
	return h
}

// Client returns the shared client, connecting on first use. The first
// caller's cancellation does not reach the dial; only dialTimeout bounds it.
func (h *Handle) Client(ctx context.Context) (*redis.Client, error) {
	h.once.Do(func() {
		h.client, h.err = h.connect(ctx)
		if h.err != nil {
			slog.Error("redis init failed, handle disabled", "error", h.err)
		}
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("%w: handle closed", ErrUnavailable)
	}
	if h.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, h.err)
	}
	return h.client, nil
}

func (h *Handle) connect(ctx context.Context) (*redis.Client, error) {
	if h.url == "" {
		return nil, errors.New("REDIS_URL not set")
	}

	opts, err := redis.ParseURL(h.url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dialTimeout)
	defer cancel()

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("redis connected", "addr", opts.Addr)
	return client, nil
}

// Ping reports whether the handle is usable right now.
func (h *Handle) Ping(ctx context.Context) error {
	client, err := h.Client(ctx)
	if err != nil {
		return err
	}

	err = client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.client == nil {
		h.closed = true
		return nil
	}
	h.closed = true
	return h.client.Close()
}
