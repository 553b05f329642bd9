package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/model"
)

const stripeSignatureHeader = "Stripe-Signature"

type StripeProvider struct {
	cfg *config.Config
	api *client.API
}

func NewStripeProvider(cfg *config.Config) *StripeProvider {
	slog.Info("stripe provider initialized", "app_env", cfg.AppEnv)

	return &StripeProvider{
		cfg: cfg,
		api: client.New(cfg.StripeSecretKey, nil),
	}
}

func (s *StripeProvider) Name() string {
	return model.ProviderStripe
}

func (s *StripeProvider) CreateCheckoutURL(ctx context.Context, req CheckoutRequest) (string, error) {
	priceID := s.priceID(req.PlanID, req.Interval)
	if priceID == "" {
		return "", fmt.Errorf("no price configured for plan: %s (%s)", req.PlanID, req.Interval)
	}

	successURL := fmt.Sprintf("%s/billing?session_id={CHECKOUT_SESSION_ID}", s.cfg.AppURL)
	cancelURL := fmt.Sprintf("%s/billing", s.cfg.AppURL)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(req.CustomerEmail),
		Metadata: map[string]string{
			"user_id": req.UserID,
			"plan_id": req.PlanID,
		},
		AllowPromotionCodes: stripe.Bool(true),
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	slog.InfoContext(ctx, "stripe checkout created", "user_id", req.UserID, "plan_id", req.PlanID, "session_id", sess.ID)
	return sess.URL, nil
}

func (s *StripeProvider) ParseWebhook(payload []byte, headers http.Header) (*Event, error) {
	signature := headers.Get(stripeSignatureHeader)
	if signature == "" || s.cfg.StripeWebhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}

	// Stripe's API versions are backwards compatible for the fields read here.
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case "checkout.session.completed":
		var session struct {
			CustomerID      string            `json:"customer"`
			CustomerEmail   string            `json:"customer_email"`
			SubscriptionID  string            `json:"subscription"`
			Metadata        map[string]string `json:"metadata"`
			CustomerDetails struct {
				Email string `json:"email"`
			} `json:"customer_details"`
		}
		err = json.Unmarshal(event.Data.Raw, &session)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}

		out.Kind = EventCheckoutCompleted
		out.UserID = session.Metadata["user_id"]
		out.PlanID = session.Metadata["plan_id"]
		out.CustomerID = session.CustomerID
		out.SubscriptionID = session.SubscriptionID
		out.CustomerEmail = session.CustomerDetails.Email
		if out.CustomerEmail == "" {
			out.CustomerEmail = session.CustomerEmail
		}

	case "customer.subscription.deleted":
		var subscription struct {
			ID string `json:"id"`
		}
		err = json.Unmarshal(event.Data.Raw, &subscription)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.Kind = EventSubscriptionCanceled
		out.SubscriptionID = subscription.ID
	}

	return out, nil
}

func (s *StripeProvider) priceID(planID, interval string) string {
	switch {
	case planID == model.SubscriptionPlanPro && interval == model.SubscriptionIntervalMonthly:
		return s.cfg.StripePriceIDProMonthly
	case planID == model.SubscriptionPlanPro && interval == model.SubscriptionIntervalYearly:
		return s.cfg.StripePriceIDProYearly
	default:
		return ""
	}
}
