package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/repository"
	"github.com/templui/refinekit/internal/validation"
)

const (
	ResetRequestMessage  = "If an account exists for that email, a reset link has been sent."
	ResetCompleteMessage = "Password has been reset"
)

// ResetRequestResult carries the raw token back to the caller.
// Both fields stay empty unless token exposure is enabled (development only).
type ResetRequestResult struct {
	Token    string
	ResetURL string
}

type PasswordResetService struct {
	tokenRepository repository.ResetTokenRepository
	userRepository  repository.UserRepository
	emailService    *EmailService
	appURL          string
	ttl             time.Duration
	exposeTokens    bool
	now             func() time.Time
}

func NewPasswordResetService(
	tokenRepository repository.ResetTokenRepository,
	userRepository repository.UserRepository,
	emailService *EmailService,
	appURL string,
	ttl time.Duration,
	services config.Services,
) *PasswordResetService {
	return &PasswordResetService{
		tokenRepository: tokenRepository,
		userRepository:  userRepository,
		emailService:    emailService,
		appURL:          appURL,
		ttl:             ttl,
		exposeTokens:    services.ExposeResetTokens,
		now:             time.Now,
	}
}

// GenerateResetToken returns a 32-byte random token (hex) and its SHA-256 digest.
func GenerateResetToken() (raw, digest string, err error) {
	b := make([]byte, 32)
	_, err = rand.Read(b)
	if err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, HashResetToken(raw), nil
}

func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Request issues a reset link if the email belongs to an account. The result
// is the same whether or not it does; store and mail failures are only logged.
func (s *PasswordResetService) Request(ctx context.Context, email string) (*ResetRequestResult, error) {
	err := validation.ValidateEmailShape(email)
	if err != nil {
		return nil, newValidationError("email", err)
	}
	email = validation.NormalizeEmail(email)

	// Generated up front so both branches do the same work.
	raw, digest, err := GenerateResetToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	result := &ResetRequestResult{}

	user, err := s.userRepository.ByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			slog.ErrorContext(ctx, "password reset user lookup failed", "error", err)
		} else {
			slog.InfoContext(ctx, "password reset requested for unknown email")
		}
		return result, nil
	}

	now := s.now()
	token := &model.ResetToken{
		TokenHash: digest,
		Email:     email,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	err = s.tokenRepository.Create(ctx, token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to store reset token", "error", err, "user_id", user.ID)
		return result, nil
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s&email=%s", s.appURL, raw, url.QueryEscape(email))

	err = s.emailService.SendPasswordResetEmail(ctx, email, resetURL, user.FirstName)
	if err != nil {
		slog.ErrorContext(ctx, "failed to send password reset email", "error", err, "user_id", user.ID)
	}

	if s.exposeTokens {
		slog.InfoContext(ctx, "password reset token issued (dev mode)", "user_id", user.ID, "reset_url", resetURL)
		result.Token = raw
		result.ResetURL = resetURL
	}

	return result, nil
}

// Verify checks a token without consuming it; it can be repeated until Consume.
func (s *PasswordResetService) Verify(ctx context.Context, token, email string) error {
	err := validateTokenAndEmail(token, email)
	if err != nil {
		return err
	}

	_, err = s.lookup(ctx, token, validation.NormalizeEmail(email))
	return err
}

// Consume sets a new password. The token is claimed first; if the password
// update then fails the claim is released so the link keeps working.
func (s *PasswordResetService) Consume(ctx context.Context, token, email, newPassword string) error {
	err := validateTokenAndEmail(token, email)
	if err != nil {
		return err
	}
	err = validation.ValidatePassword(newPassword)
	if err != nil {
		return newValidationError("newPassword", err)
	}

	record, err := s.lookup(ctx, token, validation.NormalizeEmail(email))
	if err != nil {
		return err
	}

	err = s.tokenRepository.MarkUsed(ctx, record)
	if errors.Is(err, repository.ErrTokenUsed) {
		return ErrInvalidToken
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to claim reset token", "error", err, "token", record)
		return ErrServiceUnavailable
	}

	user, err := s.userRepository.ByID(ctx, record.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		// Account is gone; the token stays burned.
		return ErrInvalidToken
	}
	if err != nil {
		s.release(ctx, record, err)
		return ErrServiceUnavailable
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		s.release(ctx, record, err)
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = &hash
	err = s.userRepository.Update(ctx, user)
	if err != nil {
		s.release(ctx, record, err)
		return ErrServiceUnavailable
	}

	slog.InfoContext(ctx, "password reset completed", "user_id", user.ID)

	err = s.emailService.SendPasswordChangedEmail(ctx, user.Email, user.FirstName)
	if err != nil {
		slog.WarnContext(ctx, "failed to send password changed email", "error", err, "user_id", user.ID)
	}
	return nil
}

// lookup finds the unused record for token and email. An expired match is
// retired on the spot so it can never be replayed.
func (s *PasswordResetService) lookup(ctx context.Context, token, email string) (*model.ResetToken, error) {
	record, err := s.tokenRepository.FindUnused(ctx, HashResetToken(token), email)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		slog.ErrorContext(ctx, "reset token lookup failed", "error", err)
		return nil, ErrServiceUnavailable
	}

	if record.IsExpired(s.now()) {
		err = s.tokenRepository.MarkUsed(ctx, record)
		if err != nil && !errors.Is(err, repository.ErrTokenUsed) {
			slog.WarnContext(ctx, "failed to retire expired reset token", "error", err, "token", record)
		}
		return nil, ErrTokenExpired
	}

	return record, nil
}

func (s *PasswordResetService) release(ctx context.Context, record *model.ResetToken, cause error) {
	slog.ErrorContext(ctx, "password reset failed after claim, releasing token", "error", cause, "token", record)

	err := s.tokenRepository.Release(ctx, record)
	if err != nil {
		slog.ErrorContext(ctx, "failed to release reset token", "error", err, "token", record)
	}
}

func validateTokenAndEmail(token, email string) error {
	err := validation.ValidateResetToken(token)
	if err != nil {
		return newValidationError("token", err)
	}
	err = validation.ValidateEmailShape(email)
	if err != nil {
		return newValidationError("email", err)
	}
	return nil
}
