// AngelaMos | 2026
// events.go

package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
)

const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventCheckoutAsyncSucceeded  = "checkout.session.async_payment_succeeded"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventInvoicePaid             = "invoice.paid"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
)

// Event is a verified provider event. Raw holds data.object.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Raw     json.RawMessage
}

func decode[T any](ev Event) (*T, error) {
	var v T
	if err := json.Unmarshal(ev.Raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	return &v, nil
}

// settled reports whether the session's money has actually moved.
func settled(cs *stripe.CheckoutSession) bool {
	return cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionRef(s *stripe.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}

// invoiceSubscriptionID finds the subscription behind an invoice, first on
// the invoice parent and then on its line items.
func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if id := subscriptionRef(inv.Parent.SubscriptionDetails.Subscription); id != "" {
			return id
		}
	}

	if inv.Lines == nil {
		return ""
	}
	for _, line := range inv.Lines.Data {
		if line == nil {
			continue
		}
		if id := subscriptionRef(line.Subscription); id != "" {
			return id
		}
		if line.Parent != nil && line.Parent.SubscriptionItemDetails != nil &&
			line.Parent.SubscriptionItemDetails.Subscription != "" {
			return line.Parent.SubscriptionItemDetails.Subscription
		}
	}
	return ""
}

// snapshotFromStripe flattens a subscription into the fields the mirror
// keeps. The period end is the latest across items.
func snapshotFromStripe(sub *stripe.Subscription) *SubscriptionSnapshot {
	snap := &SubscriptionSnapshot{
		ID:                sub.ID,
		CustomerID:        customerID(sub.Customer),
		Status:            SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}

	if sub.Items == nil {
		return snap
	}

	var periodEnd int64
	first := true
	for _, item := range sub.Items.Data {
		if item == nil {
			continue
		}
		if item.CurrentPeriodEnd > periodEnd {
			periodEnd = item.CurrentPeriodEnd
		}
		if first && item.Price != nil {
			first = false
			snap.PriceID = item.Price.ID
			snap.UnitAmount = item.Price.UnitAmount
			snap.Currency = string(item.Price.Currency)
			if item.Price.Recurring != nil {
				snap.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	snap.CurrentPeriodEnd = unixPtr(periodEnd)

	return snap
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
