package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_ConnectsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	h := New("redis://" + mr.Addr())
	t.Cleanup(func() { _ = h.Close() })

	ctx := context.Background()
	first, err := h.Client(ctx)
	require.NoError(t, err)
	second, err := h.Client(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NoError(t, h.Ping(ctx))
}

func TestHandle_BrokenInitStaysUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	h := New("redis://" + addr)
	ctx := context.Background()

	_, err := h.Client(ctx)
	require.ErrorIs(t, err, ErrUnavailable)

	// A server appearing later does not revive the handle.
	restarted := miniredis.NewMiniRedis()
	require.NoError(t, restarted.StartAddr(addr))
	t.Cleanup(restarted.Close)

	_, err = h.Client(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, h.Ping(ctx), ErrUnavailable)
}

func TestHandle_InvalidURL(t *testing.T) {
	h := New("not a url")
	_, err := h.Client(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHandle_Closed(t *testing.T) {
	mr := miniredis.RunT(t)
	h := New("redis://" + mr.Addr())
	ctx := context.Background()

	_, err := h.Client(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.Client(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, h.Close())
}

func TestHandle_CancelledFirstCallerDoesNotBreakHandle(t *testing.T) {
	mr := miniredis.RunT(t)
	h := New("redis://" + mr.Addr())
	t.Cleanup(func() { _ = h.Close() })

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Client(cancelled)
	require.NoError(t, err)

	client, err := h.Client(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NoError(t, h.Ping(context.Background()))
}
