package validation

import (
	"errors"
	"net/mail"
	"strings"
)

const maxEmailLength = 254

var (
	ErrEmailRequired = errors.New("email address is required")
	ErrEmailTooLong  = errors.New("email address is too long (max 254 characters)")
	ErrEmailInvalid  = errors.New("invalid email address format")
)

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmailShape is the cheap boundary check used by the reset and OTP flows:
// a non-empty address containing "@". Anything stricter is left to whoever owns the account.
func ValidateEmailShape(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > maxEmailLength {
		return ErrEmailTooLong
	}
	if !strings.Contains(email, "@") {
		return ErrEmailInvalid
	}
	return nil
}

// ValidateEmail validates email format and length for new accounts.
// Uses Go's built-in net/mail parser which follows RFC 5322
func ValidateEmail(email string) error {
	err := ValidateEmailShape(email)
	if err != nil {
		return err
	}

	_, err = mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return ErrEmailInvalid
	}

	return nil
}
