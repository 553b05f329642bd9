package validation

import (
	"errors"
	"path"
	"strings"
)

const maxObjectKeyLength = 512

var ErrObjectKeyInvalid = errors.New("invalid file key")

// ValidateObjectKey checks a storage key requested through the download proxy.
// Keys are relative, clean paths without traversal segments.
func ValidateObjectKey(key string) error {
	if key == "" || len(key) > maxObjectKeyLength {
		return ErrObjectKeyInvalid
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrObjectKeyInvalid
	}
	if path.Clean(key) != key {
		return ErrObjectKeyInvalid
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." || segment == "." {
			return ErrObjectKeyInvalid
		}
	}
	return nil
}
