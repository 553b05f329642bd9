package model

import "time"

// BillingEvent is the audit record written for every verified webhook delivery.
// (Provider, EventID) is unique, which makes redelivery a no-op.
type BillingEvent struct {
	ID            string    `db:"id"`
	Provider      string    `db:"provider"`
	EventID       string    `db:"event_id"`
	EventType     string    `db:"event_type"`
	UserID        *string   `db:"user_id"`
	CustomerEmail string    `db:"customer_email"`
	Status        string    `db:"status"`
	Detail        string    `db:"detail"`
	CreatedAt     time.Time `db:"created_at"`
}

const (
	BillingEventApplied    = "applied"
	BillingEventUnresolved = "unresolved"
	BillingEventFailed     = "failed"
	BillingEventIgnored    = "ignored"
)
