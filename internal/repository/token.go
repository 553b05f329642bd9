package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/refinekit/internal/model"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenUsed     = errors.New("token has already been used")

	// ErrExpiresByTTL is returned by stores whose records expire on their own.
	ErrExpiresByTTL = errors.New("records expire by TTL, nothing to clean up")
)

// ResetTokenRepository stores hashed password reset tokens.
// Lookups only ever see unused records; MarkUsed is the single conditional
// write that decides which of two concurrent consumers wins.
type ResetTokenRepository interface {
	Create(ctx context.Context, token *model.ResetToken) error
	FindUnused(ctx context.Context, tokenHash, email string) (*model.ResetToken, error)
	MarkUsed(ctx context.Context, token *model.ResetToken) error
	Release(ctx context.Context, token *model.ResetToken) error
	CleanupExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

type resetTokenRepository struct {
	db *sqlx.DB
}

func NewResetTokenRepository(db *sqlx.DB) ResetTokenRepository {
	return &resetTokenRepository{db: db}
}

func (r *resetTokenRepository) Create(ctx context.Context, token *model.ResetToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO reset_tokens (id, token_hash, email, user_id, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.TokenHash,
		token.Email,
		token.UserID,
		token.ExpiresAt.UTC(),
		false,
		token.CreatedAt.UTC(),
	)
	return err
}

// FindUnused returns the unused record for the digest and email, expired or not.
// Expiry is decided by the caller so it can retire expired records.
func (r *resetTokenRepository) FindUnused(ctx context.Context, tokenHash, email string) (*model.ResetToken, error) {
	var t model.ResetToken
	query := `
		SELECT id, token_hash, email, user_id, expires_at, used, used_at, created_at
		FROM reset_tokens
		WHERE token_hash = $1 AND email = $2 AND used = FALSE
	`
	err := r.db.GetContext(ctx, &t, query, tokenHash, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkUsed flips used from false to true. Only the first caller succeeds,
// every later caller gets ErrTokenUsed.
func (r *resetTokenRepository) MarkUsed(ctx context.Context, token *model.ResetToken) error {
	now := time.Now().UTC()
	query := `UPDATE reset_tokens SET used = TRUE, used_at = $1 WHERE id = $2 AND used = FALSE`

	result, err := r.db.ExecContext(ctx, query, now, token.ID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenUsed
	}

	token.Used = true
	token.UsedAt = &now
	return nil
}

// Release undoes a claim when the password update that followed it failed.
func (r *resetTokenRepository) Release(ctx context.Context, token *model.ResetToken) error {
	query := `UPDATE reset_tokens SET used = FALSE, used_at = NULL WHERE id = $1 AND used = TRUE`

	_, err := r.db.ExecContext(ctx, query, token.ID)
	if err != nil {
		return err
	}

	token.Used = false
	token.UsedAt = nil
	return nil
}

// CleanupExpired removes used and expired tokens older than the given duration.
// Tokens are not deleted automatically so the table doubles as an audit trail;
// `ctl tokens cleanup` runs this on demand.
func (r *resetTokenRepository) CleanupExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	query := `
		DELETE FROM reset_tokens
		WHERE (used = TRUE AND used_at < $1)
		   OR (expires_at < $1)
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
