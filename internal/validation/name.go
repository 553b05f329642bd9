package validation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var ErrNameTooLong = errors.New("name is too long (max 100 characters)")

// ValidateName validates an optional display name
func ValidateName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) > 100 {
		return ErrNameTooLong
	}
	return nil
}

// SplitName splits a display name into first and last name.
// The first word is the first name, the rest joined by single spaces is the last name.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
