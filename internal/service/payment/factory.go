package payment

import (
	"fmt"
	"log/slog"

	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/model"
)

// NewProvider creates a payment provider based on configuration.
// An empty PAYMENT_PROVIDER disables billing and returns a nil provider.
func NewProvider(cfg *config.Config) (Provider, error) {
	provider := cfg.PaymentProvider
	if provider == "" {
		slog.Info("payment provider not configured, billing disabled")
		return nil, nil
	}

	slog.Info("initializing payment provider", "provider", provider)

	switch provider {
	case model.ProviderPolar:
		if cfg.PolarAPIKey == "" {
			return nil, fmt.Errorf("POLAR_API_KEY is required when using Polar provider")
		}
		return NewPolarProvider(cfg), nil

	case model.ProviderStripe:
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when using Stripe provider")
		}
		return NewStripeProvider(cfg), nil

	default:
		return nil, fmt.Errorf("unknown payment provider: %s (supported: polar, stripe)", provider)
	}
}
