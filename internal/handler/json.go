package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/templui/refinekit/internal/service"
	"github.com/templui/refinekit/internal/service/payment"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return &service.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// writeError is the one place service errors become status codes.
// Anything unrecognized is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *service.ValidationError
		upstreamErr   *service.UpstreamError
	)

	switch {
	case errors.As(err, &validationErr):
		writeFailure(w, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, service.ErrTokenExpired):
		writeFailure(w, http.StatusBadRequest, "Reset token has expired")
	case errors.Is(err, service.ErrInvalidToken):
		writeFailure(w, http.StatusBadRequest, "Invalid or expired reset token")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, service.ErrEmailAlreadyExists):
		writeFailure(w, http.StatusConflict, "An account with this email already exists")
	case errors.Is(err, payment.ErrWebhookNotConfigured):
		writeFailure(w, http.StatusBadRequest, "Webhook not configured")
	case errors.Is(err, payment.ErrSignatureInvalid):
		writeFailure(w, http.StatusBadRequest, "Invalid signature")
	case errors.Is(err, payment.ErrMalformedEvent):
		writeFailure(w, http.StatusBadRequest, "Malformed event")
	case errors.Is(err, service.ErrNotConfigured):
		writeFailure(w, http.StatusServiceUnavailable, "Service not configured")
	case errors.Is(err, service.ErrServiceUnavailable):
		writeFailure(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	case errors.As(err, &upstreamErr):
		writeFailure(w, upstreamErr.StatusCode, upstreamErr.Message)
	case errors.Is(err, service.ErrUpstream):
		writeFailure(w, http.StatusBadGateway, "Upstream request failed")
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
	}
}
