package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/refinekit/internal/model"
)

var ErrDuplicateEvent = errors.New("billing event already recorded")

type BillingEventRepository interface {
	// Record inserts the audit row, or returns ErrDuplicateEvent when the
	// provider already delivered this event id.
	Record(ctx context.Context, event *model.BillingEvent) error
	Exists(ctx context.Context, provider, eventID string) (bool, error)
	ByProvider(ctx context.Context, provider string) ([]model.BillingEvent, error)
}

type billingEventRepository struct {
	db *sqlx.DB
}

func NewBillingEventRepository(db *sqlx.DB) BillingEventRepository {
	return &billingEventRepository{db: db}
}

func (r *billingEventRepository) Record(ctx context.Context, event *model.BillingEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO billing_events (id, provider, event_id, event_type, user_id, customer_email, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Provider,
		event.EventID,
		event.EventType,
		event.UserID,
		event.CustomerEmail,
		event.Status,
		event.Detail,
		event.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEvent
	}
	return err
}

func (r *billingEventRepository) Exists(ctx context.Context, provider, eventID string) (bool, error) {
	var n int
	query := `SELECT COUNT(*) FROM billing_events WHERE provider = $1 AND event_id = $2`

	err := r.db.GetContext(ctx, &n, query, provider, eventID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *billingEventRepository) ByProvider(ctx context.Context, provider string) ([]model.BillingEvent, error) {
	var events []model.BillingEvent
	query := `SELECT * FROM billing_events WHERE provider = $1 ORDER BY created_at`

	err := r.db.SelectContext(ctx, &events, query, provider)
	if err != nil {
		return nil, err
	}
	return events, nil
}
