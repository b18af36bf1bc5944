// AngelaMos | 2026
// reconciler_test.go

package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/dreamdiary-backend/internal/config"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement"
)

func TestCheckoutGrantsLifetime(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)

	ev := checkoutEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", "u1",
		config.PlanModePayment, "paid", "lifetime")
	assert.Equal(t, OutcomeApplied, f.apply(t, ev))

	rec := f.entitlement(t, "u1")
	assert.Equal(t, entitlement.AccessLifetime, rec.Access)
	assert.True(t, rec.IsActive)
	assert.Nil(t, rec.ExpiresAt)
	assert.Equal(t, 1, f.store.PurchaseCount())
	assert.Equal(t, 1, f.store.EventCount())

	u, err := f.store.Customers().GetByStripeCustomerID(context.Background(), "cus_u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestReplayedEventIsNoOp(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)

	ev := checkoutEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", "u1",
		config.PlanModePayment, "paid", "lifetime")
	f.apply(t, ev)
	writes := f.writes()

	assert.Equal(t, OutcomeDuplicate, f.apply(t, ev))
	assert.Equal(t, writes, f.writes())
	assert.Equal(t, 1, f.store.PurchaseCount())
}

func TestSameSessionUnderNewEventIDIsDeduped(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)

	f.apply(t, checkoutEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", "u1",
		config.PlanModePayment, "paid", "lifetime"))
	writes := f.writes()

	outcome := f.apply(t, checkoutEvent(t, "evt_2", EventCheckoutAsyncSucceeded, "cs_1", "u1",
		config.PlanModePayment, "paid", "lifetime"))
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, writes, f.writes())
	assert.Equal(t, 1, f.store.PurchaseCount())
}

func TestUnpaidCheckoutWaitsForAsyncPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)

	outcome := f.apply(t, checkoutEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", "u1",
		config.PlanModePayment, "unpaid", "lifetime"))
	assert.Equal(t, OutcomeDeferred, outcome)

	_, err := f.store.Entitlements().Get(ctx, "u1", feature)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, f.store.PurchaseCount())

	outcome = f.apply(t, checkoutEvent(t, "evt_2", EventCheckoutAsyncSucceeded, "cs_1", "u1",
		config.PlanModePayment, "paid", "lifetime"))
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, entitlement.AccessLifetime, f.entitlement(t, "u1").Access)
}

func TestSubscriptionCheckoutOnlyRecordsReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)

	outcome := f.apply(t, checkoutEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", "u1",
		config.PlanModeSubscription, "paid", "monthly"))
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 1, f.store.PurchaseCount())

	_, err := f.store.Entitlements().Get(ctx, "u1", feature)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestActiveSubscriptionGrantsAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))

	rec := f.entitlement(t, "u1")
	assert.Equal(t, entitlement.AccessSubscription, rec.Access)
	assert.True(t, rec.IsActive)
	require.NotNil(t, rec.ExpiresAt)
	assert.True(t, rec.ExpiresAt.Equal(periodEnd))

	sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, "monthly", sub.PlanKey)
	assert.Equal(t, "month", sub.Interval)
}

func TestActiveWithoutPeriodEndLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)

	ev := subscriptionEvent(t, "evt_1", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", time.Time{}))

	_, err := f.reconciler.Apply(ctx, ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInconsistent)

	assert.Zero(t, f.writes())
	assert.Zero(t, f.store.EventCount())
	_, err = f.store.Subscriptions().GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRefetchFillsMissingPeriodEnd(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, true)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)
	f.provider.put(SubscriptionSnapshot{
		ID:               "sub_1",
		CustomerID:       "cus_u1",
		Status:           StatusActive,
		CurrentPeriodEnd: &periodEnd,
		PriceID:          "price_monthly",
		Metadata:         map[string]string{"user_id": "u1"},
	})

	outcome := f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", time.Time{})))
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 1, f.provider.fetches)

	rec := f.entitlement(t, "u1")
	require.NotNil(t, rec.ExpiresAt)
	assert.True(t, rec.ExpiresAt.Equal(periodEnd))
}

func TestRefetchFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{RefetchSubscriptions: true}, true)
	f.provider.err = core.ErrUnavailable

	ev := subscriptionEvent(t, "evt_1", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", fixedNow.Add(time.Hour)))

	_, err := f.reconciler.Apply(ctx, ev)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.Zero(t, f.store.EventCount())
	assert.Zero(t, f.writes())
}

func TestStaleEventIgnored(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))

	outcome := f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionUpdated,
		fixedNow.Add(-time.Hour),
		subscriptionObject("sub_1", "u1", "past_due", periodEnd)))
	assert.Equal(t, OutcomeStale, outcome)

	rec := f.entitlement(t, "u1")
	assert.True(t, rec.IsActive)
	assert.Equal(t, 2, f.store.EventCount())
}

func TestPastDueSubscriptionRevokes(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionUpdated, fixedNow.Add(time.Hour),
		subscriptionObject("sub_1", "u1", "unpaid", periodEnd)))

	rec := f.entitlement(t, "u1")
	assert.Equal(t, entitlement.AccessSubscription, rec.Access)
	assert.False(t, rec.IsActive)
	_, ok := rec.Grants(fixedNow)
	assert.False(t, ok)
}

func TestIncompleteSubscriptionOnlyMirrored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)

	outcome := f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
		subscriptionObject("sub_1", "u1", "incomplete", time.Time{})))
	assert.Equal(t, OutcomeApplied, outcome)

	sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, sub.Status)

	_, err = f.store.Entitlements().Get(ctx, "u1", feature)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSubscriptionDeletedRevokes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionDeleted, fixedNow.Add(time.Hour),
		subscriptionObject("sub_1", "u1", "canceled", periodEnd)))

	rec := f.entitlement(t, "u1")
	assert.Equal(t, entitlement.AccessFree, rec.Access)
	assert.False(t, rec.IsActive)

	sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, sub.Status)
}

func TestLifetimeNeverDowngraded(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, checkoutEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", "u1",
		config.PlanModePayment, "paid", "lifetime"))
	f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	f.apply(t, subscriptionEvent(t, "evt_3", EventSubscriptionDeleted, fixedNow.Add(time.Hour),
		subscriptionObject("sub_1", "u1", "canceled", periodEnd)))

	rec := f.entitlement(t, "u1")
	assert.Equal(t, entitlement.AccessLifetime, rec.Access)
	assert.True(t, rec.IsActive)
}

func TestSupersededSubscriptionIgnored(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
		subscriptionObject("sub_new", "u1", "active", periodEnd)))

	outcome := f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionDeleted, fixedNow.Add(time.Hour),
		subscriptionObject("sub_old", "u1", "canceled", periodEnd)))
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.True(t, f.entitlement(t, "u1").IsActive)
}

func TestPaymentFailurePolicies(t *testing.T) {
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	tests := []struct {
		name       string
		policy     string
		wantActive bool
	}{
		{name: "grace keeps access", policy: config.PaymentFailureGrace, wantActive: true},
		{name: "deactivate revokes", policy: config.PaymentFailureDeactivate, wantActive: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, config.BillingConfig{PaymentFailurePolicy: tc.policy}, false)

			f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
				subscriptionObject("sub_1", "u1", "active", periodEnd)))

			outcome := f.apply(t, invoiceEvent(t, "evt_2", EventInvoicePaymentFailed, "sub_1",
				fixedNow.Add(time.Hour)))
			assert.Equal(t, OutcomeApplied, outcome)

			sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, StatusPastDue, sub.Status)

			rec := f.entitlement(t, "u1")
			assert.Equal(t, tc.wantActive, rec.IsActive)
			require.NotNil(t, rec.ExpiresAt)
			assert.True(t, rec.ExpiresAt.Equal(periodEnd))
		})
	}
}

func TestPaymentFailedForUnknownSubscription(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)

	outcome := f.apply(t, invoiceEvent(t, "evt_1", EventInvoicePaymentFailed, "sub_missing", fixedNow))
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Zero(t, f.writes())
}

func TestInvoicePaidRefetchesSubscription(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, true)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)
	f.provider.put(SubscriptionSnapshot{
		ID:               "sub_1",
		CustomerID:       "cus_u1",
		Status:           StatusActive,
		CurrentPeriodEnd: &periodEnd,
		PriceID:          "price_monthly",
		Metadata:         map[string]string{"user_id": "u1"},
	})

	outcome := f.apply(t, invoiceEvent(t, "evt_1", EventInvoicePaid, "sub_1", fixedNow))
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 1, f.provider.fetches)
	assert.True(t, f.entitlement(t, "u1").IsActive)
}

func TestInvoicePaidWithoutProviderIgnored(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)

	outcome := f.apply(t, invoiceEvent(t, "evt_1", EventInvoicePaid, "sub_1", fixedNow))
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Zero(t, f.store.EventCount())
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)

	outcome := f.apply(t, Event{ID: "evt_1", Type: "customer.created", Created: fixedNow})
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Zero(t, f.store.EventCount())
	assert.Zero(t, f.writes())
}

func TestUnresolvedUserFailsAndRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	obj := subscriptionObject("sub_1", "u1", "active", periodEnd)
	obj["metadata"] = map[string]string{}
	ev := subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow, obj)

	_, err := f.reconciler.Apply(ctx, ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownUser))
	assert.Zero(t, f.store.EventCount())

	require.NoError(t, f.store.Customers().SetStripeCustomerID(ctx, "u1", "cus_u1"))

	outcome := f.apply(t, ev)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.True(t, f.entitlement(t, "u1").IsActive)
}

func TestResyncAppliesProviderState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, true)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)
	renewed := periodEnd.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	f.provider.put(SubscriptionSnapshot{
		ID:               "sub_1",
		CustomerID:       "cus_u1",
		Status:           StatusActive,
		CurrentPeriodEnd: &renewed,
		PriceID:          "price_monthly",
	})
	events := f.store.EventCount()

	outcome, err := f.reconciler.Resync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, events, f.store.EventCount())

	rec := f.entitlement(t, "u1")
	require.NotNil(t, rec.ExpiresAt)
	assert.True(t, rec.ExpiresAt.Equal(renewed))
}

func TestSameSecondUpdateAfterDeleteKeepsAccessRevoked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow.Add(-time.Hour),
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionDeleted, fixedNow,
		subscriptionObject("sub_1", "u1", "canceled", periodEnd)))

	outcome := f.apply(t, subscriptionEvent(t, "evt_3", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	assert.Equal(t, OutcomeStale, outcome)

	rec := f.entitlement(t, "u1")
	assert.Equal(t, entitlement.AccessFree, rec.Access)
	assert.False(t, rec.IsActive)

	sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, sub.Status)
	assert.Equal(t, 3, f.store.EventCount())
}

func TestEndedSubscriptionNotReactivatedByLaterEvent(t *testing.T) {
	for _, withProvider := range []bool{false, true} {
		name := "without provider"
		if withProvider {
			name = "with provider"
		}

		t.Run(name, func(t *testing.T) {
			f := newFixture(t, config.BillingConfig{}, withProvider)
			periodEnd := fixedNow.Add(30 * 24 * time.Hour)

			f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow.Add(-time.Hour),
				subscriptionObject("sub_1", "u1", "active", periodEnd)))
			f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionDeleted, fixedNow,
				subscriptionObject("sub_1", "u1", "canceled", periodEnd)))

			outcome := f.apply(t, subscriptionEvent(t, "evt_3", EventSubscriptionUpdated,
				fixedNow.Add(time.Hour),
				subscriptionObject("sub_1", "u1", "active", periodEnd)))
			assert.Equal(t, OutcomeStale, outcome)
			assert.Zero(t, f.provider.fetches)
			assert.False(t, f.entitlement(t, "u1").IsActive)
		})
	}
}

func TestSameSecondUpdateWithoutProviderKeepsFirst(t *testing.T) {
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "past_due", periodEnd)))

	outcome := f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	assert.Equal(t, OutcomeStale, outcome)
	assert.False(t, f.entitlement(t, "u1").IsActive)
}

func TestSameSecondUpdateResolvedByRefetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, true)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow.Add(-time.Hour),
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "unpaid", periodEnd)))
	assert.Zero(t, f.provider.fetches)

	f.provider.put(SubscriptionSnapshot{
		ID:               "sub_1",
		CustomerID:       "cus_u1",
		Status:           StatusUnpaid,
		CurrentPeriodEnd: &periodEnd,
		PriceID:          "price_monthly",
		Metadata:         map[string]string{"user_id": "u1"},
	})

	outcome := f.apply(t, subscriptionEvent(t, "evt_3", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 1, f.provider.fetches)

	sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusUnpaid, sub.Status)
	assert.False(t, f.entitlement(t, "u1").IsActive)
}

func TestLapsedPeriodIsMirroredWithoutAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{}, false)
	periodEnd := fixedNow.Add(-time.Hour)

	outcome := f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionUpdated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 1, f.store.EventCount())

	sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodEnd.Equal(periodEnd))

	rec := f.entitlement(t, "u1")
	assert.Equal(t, entitlement.AccessSubscription, rec.Access)
	assert.False(t, rec.IsActive)
	_, ok := rec.Grants(fixedNow)
	assert.False(t, ok)
}

func TestPaymentFailedAfterCancelIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{PaymentFailurePolicy: config.PaymentFailureDeactivate}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))
	f.apply(t, subscriptionEvent(t, "evt_2", EventSubscriptionDeleted, fixedNow.Add(time.Hour),
		subscriptionObject("sub_1", "u1", "canceled", periodEnd)))

	outcome := f.apply(t, invoiceEvent(t, "evt_3", EventInvoicePaymentFailed, "sub_1",
		fixedNow.Add(2*time.Hour)))
	assert.Equal(t, OutcomeStale, outcome)

	sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, sub.Status)
}

func TestPaymentFailedFindsSubscriptionOnLineItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.BillingConfig{PaymentFailurePolicy: config.PaymentFailureDeactivate}, false)
	periodEnd := fixedNow.Add(30 * 24 * time.Hour)

	f.apply(t, subscriptionEvent(t, "evt_1", EventSubscriptionCreated, fixedNow,
		subscriptionObject("sub_1", "u1", "active", periodEnd)))

	outcome := f.apply(t, lineItemInvoiceEvent(t, "evt_2", EventInvoicePaymentFailed, "sub_1",
		fixedNow.Add(time.Hour)))
	assert.Equal(t, OutcomeApplied, outcome)

	sub, err := f.store.Subscriptions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, sub.Status)
	assert.False(t, f.entitlement(t, "u1").IsActive)
}
