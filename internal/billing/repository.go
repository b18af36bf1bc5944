// AngelaMos | 2026
// repository.go

package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
)

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	GetByStripeID(ctx context.Context, stripeID string) (*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription) error
}

type PurchaseRepository interface {
	Insert(ctx context.Context, p *Purchase) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]Purchase, error)
}

type EventRepository interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, ev ProcessedEvent) error
}

type subscriptionRepository struct {
	db core.DBTX
}

func NewSubscriptionRepository(db core.DBTX) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, user_id, stripe_subscription_id, stripe_customer_id, status,
	plan_key, price_id, unit_amount, currency, billing_interval,
	current_period_end, cancel_at_period_end, last_event_at,
	created_at, updated_at`

// GetByUserID locks the row for the rest of the surrounding transaction.
func (r *subscriptionRepository) GetByUserID(
	ctx context.Context,
	userID string,
) (*Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		FOR UPDATE`

	var sub Subscription
	err := r.db.GetContext(ctx, &sub, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return &sub, nil
}

func (r *subscriptionRepository) GetByStripeID(
	ctx context.Context,
	stripeID string,
) (*Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE stripe_subscription_id = $1`

	var sub Subscription
	err := r.db.GetContext(ctx, &sub, query, stripeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription by stripe id: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}

	return &sub, nil
}

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	query := `
		INSERT INTO subscriptions (
			id, user_id, stripe_subscription_id, stripe_customer_id, status,
			plan_key, price_id, unit_amount, currency, billing_interval,
			current_period_end, cancel_at_period_end, last_event_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE
		SET stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		    stripe_customer_id = EXCLUDED.stripe_customer_id,
		    status = EXCLUDED.status,
		    plan_key = EXCLUDED.plan_key,
		    price_id = EXCLUDED.price_id,
		    unit_amount = EXCLUDED.unit_amount,
		    currency = EXCLUDED.currency,
		    billing_interval = EXCLUDED.billing_interval,
		    current_period_end = EXCLUDED.current_period_end,
		    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		    last_event_at = EXCLUDED.last_event_at,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.StripeSubscriptionID,
		sub.StripeCustomerID,
		sub.Status,
		sub.PlanKey,
		sub.PriceID,
		sub.UnitAmount,
		sub.Currency,
		sub.Interval,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.LastEventAt,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if core.IsDuplicateKey(err) {
			return fmt.Errorf("upsert subscription: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("upsert subscription: %w", err)
	}

	return nil
}

type purchaseRepository struct {
	db core.DBTX
}

func NewPurchaseRepository(db core.DBTX) PurchaseRepository {
	return &purchaseRepository{db: db}
}

// Insert reports false when a receipt for the session already exists.
func (r *purchaseRepository) Insert(ctx context.Context, p *Purchase) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO purchases (
			id, stripe_checkout_session_id, user_id, plan_key, mode,
			status, amount_total, currency
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stripe_checkout_session_id) DO NOTHING
		RETURNING created_at`

	err := r.db.GetContext(ctx, &p.CreatedAt, query,
		p.ID,
		p.StripeCheckoutSessionID,
		p.UserID,
		p.PlanKey,
		p.Mode,
		p.Status,
		p.AmountTotal,
		p.Currency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert purchase: %w", err)
	}

	return true, nil
}

func (r *purchaseRepository) ListByUser(
	ctx context.Context,
	userID string,
) ([]Purchase, error) {
	query := `
		SELECT id, stripe_checkout_session_id, user_id, plan_key, mode,
		       status, amount_total, currency, created_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY created_at DESC`

	var purchases []Purchase
	if err := r.db.SelectContext(ctx, &purchases, query, userID); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}

	return purchases, nil
}

type eventRepository struct {
	db core.DBTX
}

func NewEventRepository(db core.DBTX) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Processed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM webhook_events WHERE event_id = $1)`,
		eventID,
	)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}

	return exists, nil
}

func (r *eventRepository) Record(ctx context.Context, ev ProcessedEvent) error {
	query := `
		INSERT INTO webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query,
		ev.EventID,
		ev.EventType,
		ev.ProcessedAt,
	); err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}

	return nil
}
