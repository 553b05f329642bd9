package validation

import (
	"errors"
	"regexp"
)

// ResetTokenLength is the hex length of a 32-byte reset token.
const ResetTokenLength = 64

var (
	ErrTokenRequired = errors.New("reset token is required")
	ErrTokenFormat   = errors.New("reset token has an invalid format")
	ErrOTPFormat     = errors.New("verification code must be exactly 6 digits")
)

var (
	resetTokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	otpPattern        = regexp.MustCompile(`^\d{6}$`)
)

// ValidateResetToken checks a raw reset token is 64 lowercase hex characters.
// It says nothing about whether the token exists.
func ValidateResetToken(token string) error {
	if token == "" {
		return ErrTokenRequired
	}
	if len(token) != ResetTokenLength || !resetTokenPattern.MatchString(token) {
		return ErrTokenFormat
	}
	return nil
}

// ValidateOTP checks a one-time code is exactly six ASCII digits.
func ValidateOTP(code string) error {
	if !otpPattern.MatchString(code) {
		return ErrOTPFormat
	}
	return nil
}
