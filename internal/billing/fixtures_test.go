// AngelaMos | 2026
// fixtures_test.go

package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/dreamdiary-backend/internal/config"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement"
)

const feature = "ai_interpretation"

var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

var testPlans = map[string]config.PlanConfig{
	"lifetime": {PriceID: "price_lifetime", Mode: config.PlanModePayment},
	"monthly":  {PriceID: "price_monthly", Mode: config.PlanModeSubscription},
}

type fakeProvider struct {
	mu        sync.Mutex
	subs      map[string]SubscriptionSnapshot
	err       error
	fetches   int
	customers int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[string]SubscriptionSnapshot)}
}

func (p *fakeProvider) put(snap SubscriptionSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[snap.ID] = snap
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*SubscriptionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fetches++
	if p.err != nil {
		return nil, p.err
	}
	snap, ok := p.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", id, core.ErrNotFound)
	}
	return &snap, nil
}

func (p *fakeProvider) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.customers++
	if p.err != nil {
		return "", p.err
	}
	return "cus_new_" + userID, nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &CheckoutSession{
		ID:  "cs_" + req.Plan.Key,
		URL: "https://checkout.test/" + req.CustomerID,
	}, nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, customerID string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://portal.test/" + customerID, nil
}

type fixture struct {
	store      *MemoryStore
	provider   *fakeProvider
	reconciler *Reconciler
}

func newFixture(t *testing.T, cfg config.BillingConfig, withProvider bool) *fixture {
	t.Helper()

	f := &fixture{
		store:    NewMemoryStore(),
		provider: newFakeProvider(),
	}

	var provider Provider
	if withProvider {
		provider = f.provider
	}

	f.reconciler = NewReconciler(
		f.store,
		provider,
		NewCatalog(testPlans, feature),
		cfg,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

func (f *fixture) apply(t *testing.T, ev Event) Outcome {
	t.Helper()
	outcome, err := f.reconciler.Apply(context.Background(), ev)
	require.NoError(t, err)
	return outcome
}

func (f *fixture) entitlement(t *testing.T, userID string) *entitlement.Record {
	t.Helper()
	rec, err := f.store.Entitlements().Get(context.Background(), userID, feature)
	require.NoError(t, err)
	return rec
}

func (f *fixture) writes() int {
	return f.store.EntitlementStore().Writes()
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func checkoutEvent(
	t *testing.T,
	eventID, eventType, sessionID, userID, mode, paymentStatus, plan string,
) Event {
	t.Helper()
	return Event{
		ID:      eventID,
		Type:    eventType,
		Created: fixedNow,
		Raw: mustRaw(t, map[string]any{
			"id":             sessionID,
			"object":         "checkout.session",
			"mode":           mode,
			"status":         "complete",
			"payment_status": paymentStatus,
			"customer":       "cus_" + userID,
			"amount_total":   4900,
			"currency":       "usd",
			"metadata": map[string]string{
				"user_id":  userID,
				"plan_key": plan,
			},
		}),
	}
}

func subscriptionObject(id, userID, status string, periodEnd time.Time) map[string]any {
	item := map[string]any{
		"price": map[string]any{
			"id":          "price_monthly",
			"unit_amount": 500,
			"currency":    "usd",
			"recurring":   map[string]any{"interval": "month"},
		},
	}
	if !periodEnd.IsZero() {
		item["current_period_end"] = periodEnd.Unix()
	}

	return map[string]any{
		"id":       id,
		"object":   "subscription",
		"customer": "cus_" + userID,
		"status":   status,
		"metadata": map[string]string{"user_id": userID},
		"items":    map[string]any{"data": []any{item}},
	}
}

func subscriptionEvent(
	t *testing.T,
	eventID, eventType string,
	created time.Time,
	obj map[string]any,
) Event {
	t.Helper()
	return Event{
		ID:      eventID,
		Type:    eventType,
		Created: created,
		Raw:     mustRaw(t, obj),
	}
}

func invoiceEvent(t *testing.T, eventID, eventType, subID string, created time.Time) Event {
	t.Helper()
	return Event{
		ID:      eventID,
		Type:    eventType,
		Created: created,
		Raw: mustRaw(t, map[string]any{
			"id":     "in_" + eventID,
			"object": "invoice",
			"parent": map[string]any{
				"type": "subscription_details",
				"subscription_details": map[string]any{
					"subscription": subID,
				},
			},
		}),
	}
}

// lineItemInvoiceEvent carries the subscription only on the invoice line.
func lineItemInvoiceEvent(t *testing.T, eventID, eventType, subID string, created time.Time) Event {
	t.Helper()
	return Event{
		ID:      eventID,
		Type:    eventType,
		Created: created,
		Raw: mustRaw(t, map[string]any{
			"id":     "in_" + eventID,
			"object": "invoice",
			"lines": map[string]any{
				"object": "list",
				"data": []any{map[string]any{
					"id":     "il_" + eventID,
					"object": "line_item",
					"parent": map[string]any{
						"type": "subscription_item_details",
						"subscription_item_details": map[string]any{
							"subscription": subID,
						},
					},
				}},
			},
		}),
	}
}
