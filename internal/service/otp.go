package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/templui/refinekit/internal/backend"
	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/validation"
)

const (
	defaultOTPRequestTTL = 600
	defaultOTPVerifyTTL  = 300
)

type OTPRequestResult struct {
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

type OTPVerifyResult struct {
	Message   string `json:"message"`
	TempToken string `json:"temp_token"`
	ExpiresIn int    `json:"expires_in"`
}

// OTPService relays one-time-code resets to the identity service.
// Input shape is checked here; everything else belongs to the identity service.
type OTPService struct {
	client     *backend.Client
	configured bool
}

func NewOTPService(client *backend.Client, services config.Services) *OTPService {
	return &OTPService{
		client:     client,
		configured: services.IdentityConfigured,
	}
}

func (s *OTPService) RequestOTP(ctx context.Context, email string) (*OTPRequestResult, error) {
	err := validation.ValidateEmailShape(email)
	if err != nil {
		return nil, newValidationError("email", err)
	}

	var out OTPRequestResult
	err = s.post(ctx, "/auth/otp/request", map[string]string{
		"email": validation.NormalizeEmail(email),
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.ExpiresIn == 0 {
		out.ExpiresIn = defaultOTPRequestTTL
	}
	return &out, nil
}

func (s *OTPService) VerifyOTP(ctx context.Context, email, otp string) (*OTPVerifyResult, error) {
	err := validation.ValidateEmailShape(email)
	if err != nil {
		return nil, newValidationError("email", err)
	}
	err = validation.ValidateOTP(otp)
	if err != nil {
		return nil, newValidationError("otp", err)
	}

	var out OTPVerifyResult
	err = s.post(ctx, "/auth/otp/verify", map[string]string{
		"email": validation.NormalizeEmail(email),
		"otp":   otp,
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.ExpiresIn == 0 {
		out.ExpiresIn = defaultOTPVerifyTTL
	}
	return &out, nil
}

func (s *OTPService) post(ctx context.Context, path string, body, out any) error {
	if !s.configured {
		return ErrServiceUnavailable
	}

	resp, err := s.client.PostJSON(ctx, path, body)
	if err != nil {
		if errors.Is(err, backend.ErrNotConfigured) || errors.Is(err, backend.ErrUnavailable) {
			slog.ErrorContext(ctx, "identity service unreachable", "path", path, "error", err)
			return ErrServiceUnavailable
		}
		return err
	}

	if !resp.OK() {
		return &UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(resp)}
	}

	err = resp.Decode(out)
	if err != nil {
		slog.ErrorContext(ctx, "identity service returned malformed body", "path", path, "error", err)
		return &UpstreamError{StatusCode: http.StatusBadGateway, Message: "Invalid response from identity service"}
	}
	return nil
}

// upstreamMessage pulls the structured error message out of an identity service reply.
func upstreamMessage(resp *backend.Response) string {
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if resp.Decode(&body) == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return http.StatusText(resp.StatusCode)
}
