package repository

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/templui/refinekit/internal/kv"
	"github.com/templui/refinekit/internal/model"
)

const (
	resetTokenKeyPrefix = "reset_token:"
	// Expired records linger this long so verification can still see and retire them.
	resetTokenRetention = 24 * time.Hour
	maxWatchRetries     = 4
)

// redisResetTokenRepository keeps one JSON record per token digest.
// Claims run inside WATCH/MULTI so the used flag flips at most once.
type redisResetTokenRepository struct {
	kv *kv.Handle
}

func NewRedisResetTokenRepository(handle *kv.Handle) ResetTokenRepository {
	return &redisResetTokenRepository{kv: handle}
}

func (r *redisResetTokenRepository) key(tokenHash string) string {
	return resetTokenKeyPrefix + tokenHash
}

func (r *redisResetTokenRepository) Create(ctx context.Context, token *model.ResetToken) error {
	client, err := r.kv.Client(ctx)
	if err != nil {
		return err
	}

	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode reset token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt) + resetTokenRetention
	ok, err := client.SetNX(ctx, r.key(token.TokenHash), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
	}
	if !ok {
		return errors.New("reset token digest collision")
	}
	return nil
}

func (r *redisResetTokenRepository) FindUnused(ctx context.Context, tokenHash, email string) (*model.ResetToken, error) {
	client, err := r.kv.Client(ctx)
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, r.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
	}

	var token model.ResetToken
	err = json.Unmarshal(data, &token)
	if err != nil {
		return nil, fmt.Errorf("decode reset token: %w", err)
	}

	if token.Used || subtle.ConstantTimeCompare([]byte(token.Email), []byte(email)) != 1 {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (r *redisResetTokenRepository) MarkUsed(ctx context.Context, token *model.ResetToken) error {
	now := time.Now().UTC()
	err := r.update(ctx, token.TokenHash, func(stored *model.ResetToken) error {
		if stored.Used {
			return ErrTokenUsed
		}
		stored.Used = true
		stored.UsedAt = &now
		return nil
	})
	if errors.Is(err, ErrTokenNotFound) {
		return ErrTokenUsed
	}
	if err != nil {
		return err
	}

	token.Used = true
	token.UsedAt = &now
	return nil
}

func (r *redisResetTokenRepository) Release(ctx context.Context, token *model.ResetToken) error {
	err := r.update(ctx, token.TokenHash, func(stored *model.ResetToken) error {
		stored.Used = false
		stored.UsedAt = nil
		return nil
	})
	if err != nil {
		return err
	}

	token.Used = false
	token.UsedAt = nil
	return nil
}

// CleanupExpired does not apply: records carry their own TTL.
func (r *redisResetTokenRepository) CleanupExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, ErrExpiresByTTL
}

// update applies fn to the stored record under WATCH, retrying when another
// client touched the key between read and write.
func (r *redisResetTokenRepository) update(ctx context.Context, tokenHash string, fn func(*model.ResetToken) error) error {
	client, err := r.kv.Client(ctx)
	if err != nil {
		return err
	}

	key := r.key(tokenHash)
	for i := 0; i < maxWatchRetries; i++ {
		err = client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrTokenNotFound
			}
			if err != nil {
				return err
			}

			var stored model.ResetToken
			err = json.Unmarshal(data, &stored)
			if err != nil {
				return fmt.Errorf("decode reset token: %w", err)
			}

			err = fn(&stored)
			if err != nil {
				return err
			}

			updated, err := json.Marshal(&stored)
			if err != nil {
				return fmt.Errorf("encode reset token: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true})
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenUsed):
				return err
			default:
				return fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
			}
		}
		return nil
	}

	return ErrTokenUsed
}
