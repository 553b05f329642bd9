package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is deliberately generic: it never says whether the token
	// was unknown, already used, or issued for another address.
	ErrInvalidToken = errors.New("invalid or expired reset token")
	// ErrTokenExpired is only returned after the token matched a stored record.
	// It also matches ErrInvalidToken under errors.Is.
	ErrTokenExpired = &expiredTokenError{}

	ErrNotConfigured      = errors.New("service not configured")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
	ErrUpstream           = errors.New("upstream request failed")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

type expiredTokenError struct{}

func (*expiredTokenError) Error() string { return "reset token has expired" }

func (*expiredTokenError) Is(target error) bool { return target == ErrInvalidToken }

// ValidationError reports malformed caller input. It is always resolved at the
// boundary, before any store or network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error()}
}

// UpstreamError carries a status and message the OTP flow is allowed to relay.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }
