package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	polargo "github.com/polarsource/polar-go"
	"github.com/polarsource/polar-go/models/components"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/model"
)

type PolarProvider struct {
	cfg    *config.Config
	client *polargo.Polar
}

func NewPolarProvider(cfg *config.Config) *PolarProvider {
	var serverOption polargo.SDKOption
	if cfg.PolarSandboxMode {
		serverOption = polargo.WithServer(polargo.ServerSandbox)
		slog.Info("polar using sandbox mode", "app_env", cfg.AppEnv)
	} else {
		serverOption = polargo.WithServer(polargo.ServerProduction)
		slog.Info("polar using production mode", "app_env", cfg.AppEnv)
	}

	client := polargo.New(
		polargo.WithSecurity(cfg.PolarAPIKey),
		serverOption,
	)

	return &PolarProvider{
		cfg:    cfg,
		client: client,
	}
}

func (p *PolarProvider) Name() string {
	return model.ProviderPolar
}

func (p *PolarProvider) CreateCheckoutURL(ctx context.Context, req CheckoutRequest) (string, error) {
	productID := p.productID(req.PlanID, req.Interval)
	if productID == "" {
		return "", fmt.Errorf("no product configured for plan: %s (%s)", req.PlanID, req.Interval)
	}

	successURL := fmt.Sprintf("%s/billing", p.cfg.AppURL)

	metadata := map[string]components.CheckoutCreateMetadata{
		"user_id": components.CreateCheckoutCreateMetadataStr(req.UserID),
		"plan_id": components.CreateCheckoutCreateMetadataStr(req.PlanID),
	}

	res, err := p.client.Checkouts.Create(ctx, components.CheckoutCreate{
		Products:           []string{productID},
		SuccessURL:         polargo.String(successURL),
		ReturnURL:          polargo.String(successURL),
		CustomerEmail:      polargo.String(req.CustomerEmail),
		CustomerName:       polargo.String(req.CustomerName),
		AllowDiscountCodes: polargo.Bool(true),
		Metadata:           metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create checkout: %w", err)
	}

	if res == nil || res.Checkout == nil {
		return "", fmt.Errorf("checkout response is nil")
	}

	slog.InfoContext(ctx, "polar checkout created", "user_id", req.UserID, "plan_id", req.PlanID, "checkout_id", res.Checkout.ID)
	return res.Checkout.URL, nil
}

// ParseWebhook verifies a Standard Webhooks signature. The webhook-id header
// doubles as the event id, since Polar payloads carry none of their own.
func (p *PolarProvider) ParseWebhook(payload []byte, headers http.Header) (*Event, error) {
	if headers.Get("webhook-signature") == "" || p.cfg.PolarWebhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}

	wh, err := standardwebhooks.NewWebhookRaw([]byte(p.cfg.PolarWebhookSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook verifier: %w", err)
	}

	err = wh.Verify(payload, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	err = json.Unmarshal(payload, &envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out := &Event{ID: headers.Get("webhook-id"), Type: envelope.Type}

	switch envelope.Type {
	case "order.paid":
		var order struct {
			ID             string            `json:"id"`
			CustomerID     string            `json:"customer_id"`
			SubscriptionID *string           `json:"subscription_id"`
			ProductID      string            `json:"product_id"`
			Metadata       map[string]string `json:"metadata"`
			Customer       struct {
				Email string `json:"email"`
			} `json:"customer"`
		}
		err = json.Unmarshal(envelope.Data, &order)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}

		out.Kind = EventCheckoutCompleted
		out.UserID = order.Metadata["user_id"]
		out.PlanID = order.Metadata["plan_id"]
		if out.PlanID == "" {
			out.PlanID = p.localPlanID(order.ProductID)
		}
		out.CustomerID = order.CustomerID
		out.CustomerEmail = order.Customer.Email
		if order.SubscriptionID != nil {
			out.SubscriptionID = *order.SubscriptionID
		}

	case "subscription.revoked":
		var subscription struct {
			ID string `json:"id"`
		}
		err = json.Unmarshal(envelope.Data, &subscription)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.Kind = EventSubscriptionCanceled
		out.SubscriptionID = subscription.ID
	}

	return out, nil
}

func (p *PolarProvider) productID(planID, interval string) string {
	switch {
	case planID == model.SubscriptionPlanPro && interval == model.SubscriptionIntervalMonthly:
		return p.cfg.PolarProductIDProMonthly
	case planID == model.SubscriptionPlanPro && interval == model.SubscriptionIntervalYearly:
		return p.cfg.PolarProductIDProYearly
	default:
		return ""
	}
}

func (p *PolarProvider) localPlanID(productID string) string {
	if productID == "" {
		return ""
	}
	switch productID {
	case p.cfg.PolarProductIDProMonthly, p.cfg.PolarProductIDProYearly:
		return model.SubscriptionPlanPro
	default:
		return ""
	}
}
