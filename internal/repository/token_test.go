package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/refinekit/internal/db/dbtest"
	"github.com/templui/refinekit/internal/kv"
	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/repository"
)

func newRedisTokenRepo(t *testing.T) repository.ResetTokenRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewRedisResetTokenRepository(kv.NewFromClient(client))
}

func tokenStores(t *testing.T) map[string]func(t *testing.T) repository.ResetTokenRepository {
	return map[string]func(t *testing.T) repository.ResetTokenRepository{
		"sql": func(t *testing.T) repository.ResetTokenRepository {
			return repository.NewResetTokenRepository(dbtest.New(t))
		},
		"redis": newRedisTokenRepo,
	}
}

func newResetToken(hash, email string, expiresIn time.Duration) *model.ResetToken {
	return &model.ResetToken{
		TokenHash: hash,
		Email:     email,
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(expiresIn),
	}
}

func TestResetTokenRepository_FindUnused(t *testing.T) {
	for name, open := range tokenStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			token := newResetToken("hash-a", "user@example.com", time.Hour)
			require.NoError(t, repo.Create(ctx, token))
			require.NotEmpty(t, token.ID)

			found, err := repo.FindUnused(ctx, "hash-a", "user@example.com")
			require.NoError(t, err)
			assert.Equal(t, token.ID, found.ID)
			assert.False(t, found.Used)
			assert.WithinDuration(t, token.ExpiresAt, found.ExpiresAt, time.Second)

			_, err = repo.FindUnused(ctx, "hash-a", "other@example.com")
			assert.ErrorIs(t, err, repository.ErrTokenNotFound)

			_, err = repo.FindUnused(ctx, "hash-b", "user@example.com")
			assert.ErrorIs(t, err, repository.ErrTokenNotFound)
		})
	}
}

func TestResetTokenRepository_MarkUsedOnce(t *testing.T) {
	for name, open := range tokenStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			token := newResetToken("hash-a", "user@example.com", time.Hour)
			require.NoError(t, repo.Create(ctx, token))

			require.NoError(t, repo.MarkUsed(ctx, token))
			assert.True(t, token.Used)
			assert.NotNil(t, token.UsedAt)

			assert.ErrorIs(t, repo.MarkUsed(ctx, token), repository.ErrTokenUsed)

			_, err := repo.FindUnused(ctx, "hash-a", "user@example.com")
			assert.ErrorIs(t, err, repository.ErrTokenNotFound)
		})
	}
}

func TestResetTokenRepository_ConcurrentClaimHasOneWinner(t *testing.T) {
	for name, open := range tokenStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			token := newResetToken("hash-race", "user@example.com", time.Hour)
			require.NoError(t, repo.Create(ctx, token))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					claim := *token
					if repo.MarkUsed(ctx, &claim) == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestResetTokenRepository_Release(t *testing.T) {
	for name, open := range tokenStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			token := newResetToken("hash-a", "user@example.com", time.Hour)
			require.NoError(t, repo.Create(ctx, token))
			require.NoError(t, repo.MarkUsed(ctx, token))

			require.NoError(t, repo.Release(ctx, token))
			assert.False(t, token.Used)

			found, err := repo.FindUnused(ctx, "hash-a", "user@example.com")
			require.NoError(t, err)
			assert.Equal(t, token.ID, found.ID)

			assert.NoError(t, repo.MarkUsed(ctx, found))
		})
	}
}

func TestResetTokenRepository_ExpiredStillVisible(t *testing.T) {
	for name, open := range tokenStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			token := newResetToken("hash-old", "user@example.com", -time.Minute)
			require.NoError(t, repo.Create(ctx, token))

			found, err := repo.FindUnused(ctx, "hash-old", "user@example.com")
			require.NoError(t, err)
			assert.True(t, found.IsExpired(time.Now()))
		})
	}
}

func TestResetTokenRepository_CleanupExpired(t *testing.T) {
	repo := repository.NewResetTokenRepository(dbtest.New(t))
	ctx := context.Background()

	old := newResetToken("hash-old", "user@example.com", -72*time.Hour)
	fresh := newResetToken("hash-new", "user@example.com", time.Hour)
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	deleted, err := repo.CleanupExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindUnused(ctx, "hash-new", "user@example.com")
	assert.NoError(t, err)
}

func TestRedisResetTokenRepository_CleanupExpiresByTTL(t *testing.T) {
	repo := newRedisTokenRepo(t)

	deleted, err := repo.CleanupExpired(context.Background(), 24*time.Hour)
	assert.ErrorIs(t, err, repository.ErrExpiresByTTL)
	assert.Zero(t, deleted)
}

func TestRedisResetTokenRepository_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	repo := repository.NewRedisResetTokenRepository(kv.New("redis://" + addr))
	err := repo.Create(context.Background(), newResetToken("h", "user@example.com", time.Hour))
	assert.ErrorIs(t, err, kv.ErrUnavailable)
}
