package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/service/payment"
)

const testStripeWebhookSecret = "whsec_test_secret"

func newStripeBilling(env *testEnv) *BillingService {
	provider := payment.NewStripeProvider(&config.Config{
		AppURL:              "http://app.test",
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: testStripeWebhookSecret,
	})
	return NewBillingService(provider, env.users, env.subscriptions, env.events)
}

func stripeEvent(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func signStripe(payload []byte) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  testStripeWebhookSecret,
	})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return h
}

func checkoutCompleted(t *testing.T, id, userID, email string) []byte {
	return stripeEvent(t, id, "checkout.session.completed", map[string]any{
		"id":             "cs_1",
		"object":         "checkout.session",
		"customer":       "cus_1",
		"customer_email": email,
		"subscription":   "sub_1",
		"metadata":       map[string]string{"user_id": userID, "plan_id": model.SubscriptionPlanPro},
	})
}

func TestBilling_CheckoutActivatesByMetadataUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup(t, "payer@example.com", "password-123", "")
	svc := newStripeBilling(env)
	ctx := context.Background()

	payload := checkoutCompleted(t, "evt_1", user.ID, "")
	require.NoError(t, svc.HandleWebhook(ctx, payload, signStripe(payload)))

	sub, err := env.subscriptions.Subscription(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, sub.IsPaid())
	assert.Equal(t, model.ProviderStripe, sub.Provider)
	require.NotNil(t, sub.ProviderSubscriptionID)
	assert.Equal(t, "sub_1", *sub.ProviderSubscriptionID)

	events, err := env.events.ByProvider(ctx, model.ProviderStripe)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.BillingEventApplied, events[0].Status)
	require.NotNil(t, events[0].UserID)
	assert.Equal(t, user.ID, *events[0].UserID)
}

func TestBilling_CheckoutFallsBackToEmail(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup(t, "payer@example.com", "password-123", "")
	svc := newStripeBilling(env)
	ctx := context.Background()

	payload := checkoutCompleted(t, "evt_2", "", "Payer@Example.com")
	require.NoError(t, svc.HandleWebhook(ctx, payload, signStripe(payload)))

	sub, err := env.subscriptions.Subscription(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, sub.IsPaid())
}

func TestBilling_UnresolvedUserIsStillAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	svc := newStripeBilling(env)
	ctx := context.Background()

	payload := checkoutCompleted(t, "evt_3", "missing-user", "ghost@example.com")
	require.NoError(t, svc.HandleWebhook(ctx, payload, signStripe(payload)))

	events, err := env.events.ByProvider(ctx, model.ProviderStripe)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.BillingEventUnresolved, events[0].Status)
	assert.Equal(t, "ghost@example.com", events[0].CustomerEmail)
}

func TestBilling_TamperedPayloadHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup(t, "payer@example.com", "password-123", "")
	svc := newStripeBilling(env)
	ctx := context.Background()

	original := checkoutCompleted(t, "evt_4", "someone-else", "")
	headers := signStripe(original)
	tampered := checkoutCompleted(t, "evt_4", user.ID, "")

	err := svc.HandleWebhook(ctx, tampered, headers)
	assert.ErrorIs(t, err, payment.ErrSignatureInvalid)

	events, err := env.events.ByProvider(ctx, model.ProviderStripe)
	require.NoError(t, err)
	assert.Empty(t, events)

	sub, err := env.subscriptions.Subscription(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, sub.IsPaid())
}

func TestBilling_RedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup(t, "payer@example.com", "password-123", "")
	svc := newStripeBilling(env)
	ctx := context.Background()

	payload := checkoutCompleted(t, "evt_5", user.ID, "")
	require.NoError(t, svc.HandleWebhook(ctx, payload, signStripe(payload)))
	require.NoError(t, svc.HandleWebhook(ctx, payload, signStripe(payload)))

	events, err := env.events.ByProvider(ctx, model.ProviderStripe)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestBilling_SubscriptionDeletedDowngrades(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup(t, "payer@example.com", "password-123", "")
	svc := newStripeBilling(env)
	ctx := context.Background()

	payload := checkoutCompleted(t, "evt_6", user.ID, "")
	require.NoError(t, svc.HandleWebhook(ctx, payload, signStripe(payload)))

	deleted := stripeEvent(t, "evt_7", "customer.subscription.deleted", map[string]any{
		"id":     "sub_1",
		"object": "subscription",
	})
	require.NoError(t, svc.HandleWebhook(ctx, deleted, signStripe(deleted)))

	sub, err := env.subscriptions.Subscription(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPlanFree, sub.PlanID)
	assert.Nil(t, sub.ProviderSubscriptionID)
}

func TestBilling_UnknownEventIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	svc := newStripeBilling(env)
	ctx := context.Background()

	payload := stripeEvent(t, "evt_8", "invoice.created", map[string]any{"id": "in_1"})
	require.NoError(t, svc.HandleWebhook(ctx, payload, signStripe(payload)))

	events, err := env.events.ByProvider(ctx, model.ProviderStripe)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.BillingEventIgnored, events[0].Status)
}

func TestBilling_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	disabled := NewBillingService(nil, env.users, env.subscriptions, env.events)
	assert.False(t, disabled.Configured())
	assert.ErrorIs(t, disabled.HandleWebhook(ctx, []byte(`{}`), http.Header{}), payment.ErrWebhookNotConfigured)

	_, err := disabled.CreateCheckout(ctx, &model.User{ID: "u"}, model.SubscriptionPlanPro, "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	svc := newStripeBilling(env)
	payload := checkoutCompleted(t, "evt_9", "u", "")
	assert.ErrorIs(t, svc.HandleWebhook(ctx, payload, http.Header{}), payment.ErrWebhookNotConfigured)
}

func TestBilling_CheckoutValidatesPlan(t *testing.T) {
	env := newTestEnv(t)
	svc := newStripeBilling(env)
	user := &model.User{ID: "u", Email: "payer@example.com"}

	_, err := svc.CreateCheckout(context.Background(), user, "enterprise", "monthly")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "plan_id", verr.Field)

	_, err = svc.CreateCheckout(context.Background(), user, model.SubscriptionPlanPro, "weekly")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "interval", verr.Field)
}
