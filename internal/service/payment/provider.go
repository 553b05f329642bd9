package payment

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrWebhookNotConfigured means the signature header or signing secret is missing.
	ErrWebhookNotConfigured = errors.New("webhook signature or secret missing")
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
	ErrMalformedEvent       = errors.New("webhook payload malformed")
)

// Provider defines the interface that all payment providers must implement
type Provider interface {
	// CreateCheckoutURL creates a checkout session and returns the URL
	CreateCheckoutURL(ctx context.Context, req CheckoutRequest) (string, error)

	// ParseWebhook verifies the signature over the raw payload and decodes the event.
	// Nothing is returned unless verification succeeded.
	ParseWebhook(payload []byte, headers http.Header) (*Event, error)

	// Name returns the provider name (e.g., "polar", "stripe")
	Name() string
}

type CheckoutRequest struct {
	UserID        string
	PlanID        string
	Interval      string
	CustomerEmail string
	CustomerName  string
}

type EventKind int

const (
	EventOther EventKind = iota
	EventCheckoutCompleted
	EventSubscriptionCanceled
)

// Event is a verified webhook event reduced to what bookkeeping needs.
type Event struct {
	ID   string
	Type string
	Kind EventKind

	// Set from checkout metadata when the checkout was started by this app.
	UserID string
	PlanID string

	CustomerEmail  string
	CustomerID     string
	SubscriptionID string
}
