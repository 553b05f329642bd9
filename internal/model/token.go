package model

import (
	"log/slog"
	"time"
)

// ResetToken is the stored half of a password reset link.
// Only the SHA-256 digest of the emailed token is kept.
type ResetToken struct {
	ID        string     `db:"id" json:"id"`
	TokenHash string     `db:"token_hash" json:"token_hash"`
	Email     string     `db:"email" json:"email"`
	UserID    string     `db:"user_id" json:"user_id"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	Used      bool       `db:"used" json:"used"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

func (t *ResetToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// LogValue keeps the digest out of logs.
func (t *ResetToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", t.ID),
		slog.String("user_id", t.UserID),
		slog.Time("expires_at", t.ExpiresAt),
		slog.Bool("used", t.Used),
	)
}
