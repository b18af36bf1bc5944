// AngelaMos | 2026
// entity.go

package billing

import (
	"time"
)

type SubscriptionStatus string

const (
	StatusActive            SubscriptionStatus = "active"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// Entitles reports whether the status grants paid access.
func (s SubscriptionStatus) Entitles() bool {
	return s == StatusActive || s == StatusTrialing
}

// Provisional statuses belong to a checkout that has not settled yet; they
// are mirrored but never change entitlements.
func (s SubscriptionStatus) Provisional() bool {
	return s == StatusIncomplete || s == StatusIncompleteExpired
}

// Terminal statuses never return to an entitling state for the same
// subscription.
func (s SubscriptionStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusIncompleteExpired
}

// Subscription mirrors the provider's view of a user's subscription.
type Subscription struct {
	ID                   string             `db:"id"                     json:"id"`
	UserID               string             `db:"user_id"                json:"user_id"`
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	StripeCustomerID     string             `db:"stripe_customer_id"     json:"stripe_customer_id"`
	Status               SubscriptionStatus `db:"status"                 json:"status"`
	PlanKey              string             `db:"plan_key"               json:"plan_key"`
	PriceID              string             `db:"price_id"               json:"price_id"`
	UnitAmount           int64              `db:"unit_amount"            json:"unit_amount"`
	Currency             string             `db:"currency"               json:"currency"`
	Interval             string             `db:"billing_interval"       json:"interval"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end"     json:"current_period_end"`
	CancelAtPeriodEnd    bool               `db:"cancel_at_period_end"   json:"cancel_at_period_end"`
	LastEventAt          time.Time          `db:"last_event_at"          json:"last_event_at"`
	CreatedAt            time.Time          `db:"created_at"             json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at"             json:"updated_at"`
}

// Purchase is the immutable receipt of a completed checkout session.
type Purchase struct {
	ID                      string    `db:"id"                         json:"id"`
	StripeCheckoutSessionID string    `db:"stripe_checkout_session_id" json:"stripe_checkout_session_id"`
	UserID                  string    `db:"user_id"                    json:"user_id"`
	PlanKey                 string    `db:"plan_key"                   json:"plan_key"`
	Mode                    string    `db:"mode"                       json:"mode"`
	Status                  string    `db:"status"                     json:"status"`
	AmountTotal             int64     `db:"amount_total"               json:"amount_total"`
	Currency                string    `db:"currency"                   json:"currency"`
	CreatedAt               time.Time `db:"created_at"                 json:"created_at"`
}

type ProcessedEvent struct {
	EventID     string    `db:"event_id"     json:"event_id"`
	EventType   string    `db:"event_type"   json:"event_type"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}

// SubscriptionSnapshot is a provider subscription normalized from either a
// webhook payload or a direct fetch.
type SubscriptionSnapshot struct {
	ID                string
	CustomerID        string
	Status            SubscriptionStatus
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	PriceID           string
	UnitAmount        int64
	Currency          string
	Interval          string
	Metadata          map[string]string
}
