package validation

import (
	"errors"
)

const (
	MinPasswordLength = 8
	// bcrypt silently truncates anything longer than 72 bytes
	MaxPasswordLength = 72
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must not exceed 72 characters")
)

// ValidatePassword enforces the length policy shared by signup and password reset.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}
