package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/repository"
	"github.com/templui/refinekit/internal/service/payment"
	"github.com/templui/refinekit/internal/validation"
)

// BillingService verifies provider webhooks and applies them to local subscriptions.
// A nil provider means billing is disabled.
type BillingService struct {
	provider      payment.Provider
	users         repository.UserRepository
	subscriptions *SubscriptionService
	events        repository.BillingEventRepository
}

func NewBillingService(
	provider payment.Provider,
	users repository.UserRepository,
	subscriptions *SubscriptionService,
	events repository.BillingEventRepository,
) *BillingService {
	return &BillingService{
		provider:      provider,
		users:         users,
		subscriptions: subscriptions,
		events:        events,
	}
}

func (s *BillingService) Configured() bool {
	return s.provider != nil
}

// CreateCheckout returns the provider-hosted checkout URL for the given plan.
func (s *BillingService) CreateCheckout(ctx context.Context, user *model.User, planID, interval string) (string, error) {
	if s.provider == nil {
		return "", ErrNotConfigured
	}
	if planID != model.SubscriptionPlanPro {
		return "", &ValidationError{Field: "plan_id", Message: "Unknown plan"}
	}
	if interval == "" {
		interval = model.SubscriptionIntervalMonthly
	}
	if interval != model.SubscriptionIntervalMonthly && interval != model.SubscriptionIntervalYearly {
		return "", &ValidationError{Field: "interval", Message: "Interval must be monthly or yearly"}
	}

	url, err := s.provider.CreateCheckoutURL(ctx, payment.CheckoutRequest{
		UserID:        user.ID,
		PlanID:        planID,
		Interval:      interval,
		CustomerEmail: user.Email,
		CustomerName:  user.Name(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "checkout creation failed", "provider", s.provider.Name(), "user_id", user.ID, "error", err)
		return "", fmt.Errorf("%w: checkout", ErrUpstream)
	}

	return url, nil
}

// HandleWebhook verifies the payload and applies it. Only verification errors are
// returned: once an event is verified it is acknowledged, whatever happens to the
// bookkeeping, because the sender retries every non-2xx delivery.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if s.provider == nil {
		return payment.ErrWebhookNotConfigured
	}

	event, err := s.provider.ParseWebhook(payload, headers)
	if err != nil {
		slog.WarnContext(ctx, "webhook rejected", "provider", s.provider.Name(), "error", err)
		return err
	}

	log := slog.With("provider", s.provider.Name(), "event_id", event.ID, "event_type", event.Type)

	if event.ID != "" {
		seen, err := s.events.Exists(ctx, s.provider.Name(), event.ID)
		if err != nil {
			log.ErrorContext(ctx, "billing event lookup failed", "error", err)
		} else if seen {
			log.InfoContext(ctx, "billing event already processed")
			return nil
		}
	}

	audit := &model.BillingEvent{
		Provider:      s.provider.Name(),
		EventID:       event.ID,
		EventType:     event.Type,
		CustomerEmail: event.CustomerEmail,
	}

	switch event.Kind {
	case payment.EventCheckoutCompleted:
		s.applyCheckout(ctx, log, event, audit)
	case payment.EventSubscriptionCanceled:
		s.applyCancellation(ctx, log, event, audit)
	default:
		audit.Status = model.BillingEventIgnored
		log.InfoContext(ctx, "billing event ignored")
	}

	s.record(ctx, log, audit)
	return nil
}

func (s *BillingService) applyCheckout(ctx context.Context, log *slog.Logger, event *payment.Event, audit *model.BillingEvent) {
	user, err := s.resolveUser(ctx, event)
	if err != nil {
		audit.Status = model.BillingEventUnresolved
		audit.Detail = err.Error()
		log.WarnContext(ctx, "billing event user unresolved", "customer_email", event.CustomerEmail, "error", err)
		return
	}
	audit.UserID = &user.ID

	err = s.subscriptions.Activate(ctx, user.ID, s.provider.Name(), event.PlanID, event.CustomerID, event.SubscriptionID)
	if err != nil {
		audit.Status = model.BillingEventFailed
		audit.Detail = err.Error()
		log.ErrorContext(ctx, "subscription activation failed", "user_id", user.ID, "error", err)
		return
	}

	audit.Status = model.BillingEventApplied
	log.InfoContext(ctx, "subscription activated", "user_id", user.ID, "plan_id", event.PlanID)
}

func (s *BillingService) applyCancellation(ctx context.Context, log *slog.Logger, event *payment.Event, audit *model.BillingEvent) {
	sub, err := s.subscriptions.ByProviderSubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		audit.Status = model.BillingEventUnresolved
		audit.Detail = "subscription not found"
		log.WarnContext(ctx, "subscription not found, ignoring cancellation", "subscription_id", event.SubscriptionID)
		return
	}
	audit.UserID = &sub.UserID

	err = s.subscriptions.DowngradeToFree(ctx, sub)
	if err != nil {
		audit.Status = model.BillingEventFailed
		audit.Detail = err.Error()
		log.ErrorContext(ctx, "subscription downgrade failed", "user_id", sub.UserID, "error", err)
		return
	}

	audit.Status = model.BillingEventApplied
	log.InfoContext(ctx, "subscription downgraded to free", "user_id", sub.UserID)
}

// resolveUser prefers the user id stamped into checkout metadata, then the customer email.
func (s *BillingService) resolveUser(ctx context.Context, event *payment.Event) (*model.User, error) {
	if event.UserID != "" {
		user, err := s.users.ByID(ctx, event.UserID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("lookup by id: %w", err)
		}
	}

	if event.CustomerEmail == "" {
		return nil, errors.New("no user id or customer email on event")
	}

	user, err := s.users.ByEmail(ctx, validation.NormalizeEmail(event.CustomerEmail))
	if err != nil {
		return nil, fmt.Errorf("lookup by email: %w", err)
	}
	return user, nil
}

func (s *BillingService) record(ctx context.Context, log *slog.Logger, audit *model.BillingEvent) {
	if audit.EventID == "" {
		return
	}
	err := s.events.Record(ctx, audit)
	if errors.Is(err, repository.ErrDuplicateEvent) {
		log.InfoContext(ctx, "billing event recorded concurrently")
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "billing audit write failed", "error", err)
	}
}
