// AngelaMos | 2026
// reconciler.go

package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/carterperez-dev/dreamdiary-backend/internal/config"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement"
	"github.com/carterperez-dev/dreamdiary-backend/internal/metrics"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeStale     Outcome = "stale"
	OutcomeDeferred  Outcome = "deferred"
)

const eventResync = "admin.resync"

var (
	ErrUnknownUser = fmt.Errorf("%w: no user for provider references", core.ErrInconsistent)
	errNoProvider  = fmt.Errorf("%w: payment provider not configured", core.ErrConfig)
)

// Reconciler folds provider events into entitlement, subscription and
// purchase state. Every event's writes commit together or not at all, and
// provider calls happen before the transaction opens.
type Reconciler struct {
	store         Store
	provider      Provider
	catalog       *Catalog
	policy        string
	alwaysRefetch bool
	now           func() time.Time
	logger        *slog.Logger
	refetches     singleflight.Group
}

type ReconcilerOption func(*Reconciler)

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

func WithLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler builds a reconciler. provider may be nil, in which case
// events that need a refetch fail or are skipped.
func NewReconciler(
	store Store,
	provider Provider,
	catalog *Catalog,
	cfg config.BillingConfig,
	opts ...ReconcilerOption,
) *Reconciler {
	policy := cfg.PaymentFailurePolicy
	if policy == "" {
		policy = config.PaymentFailureGrace
	}

	r := &Reconciler{
		store:         store,
		provider:      provider,
		catalog:       catalog,
		policy:        policy,
		alwaysRefetch: cfg.RefetchSubscriptions,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	ctx, span := core.StartSpan(ctx, "billing.reconcile",
		attribute.String("event_id", ev.ID),
		attribute.String("event_type", ev.Type),
	)

	outcome, err := r.apply(ctx, ev)
	core.EndSpan(span, err)

	label := string(outcome)
	if err != nil {
		label = "error"
	}
	metrics.ReconcileOutcomes.WithLabelValues(ev.Type, label).Inc()

	return outcome, err
}

func (r *Reconciler) apply(ctx context.Context, ev Event) (Outcome, error) {
	switch ev.Type {
	case EventCheckoutCompleted,
		EventCheckoutAsyncSucceeded,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventInvoicePaymentFailed,
		EventInvoicePaid,
		EventInvoicePaymentSucceeded:
	default:
		r.logger.Info("stripe event ignored (unhandled type)",
			"event_id", ev.ID,
			"type", ev.Type,
		)
		return OutcomeIgnored, nil
	}

	done, err := r.store.Events().Processed(ctx, ev.ID)
	if err != nil {
		return "", err
	}
	if done {
		r.logger.Info("stripe event already processed",
			"event_id", ev.ID,
			"type", ev.Type,
		)
		return OutcomeDuplicate, nil
	}

	switch ev.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded:
		return r.checkoutCompleted(ctx, ev)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return r.subscriptionChanged(ctx, ev)
	case EventSubscriptionDeleted:
		return r.subscriptionDeleted(ctx, ev)
	case EventInvoicePaymentFailed:
		return r.paymentFailed(ctx, ev)
	default:
		return r.invoicePaid(ctx, ev)
	}
}

// commit runs fn in one transaction and logs the event as processed only if
// fn succeeded.
func (r *Reconciler) commit(
	ctx context.Context,
	ev Event,
	fn func(tx Tx) (Outcome, error),
) (Outcome, error) {
	var outcome Outcome

	err := r.store.WithTx(ctx, func(tx Tx) error {
		var err error
		outcome, err = fn(tx)
		if err != nil {
			return err
		}
		if ev.ID == "" {
			return nil
		}
		return tx.Events().Record(ctx, ProcessedEvent{
			EventID:     ev.ID,
			EventType:   ev.Type,
			ProcessedAt: r.now().UTC(),
		})
	})
	if err != nil {
		return "", err
	}

	return outcome, nil
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, ev Event) (Outcome, error) {
	cs, err := decode[stripe.CheckoutSession](ev)
	if err != nil {
		return "", err
	}
	if cs.ID == "" {
		return "", fmt.Errorf("%w: checkout session without id", core.ErrInconsistent)
	}

	paymentMode := cs.Mode == stripe.CheckoutSessionModePayment
	if paymentMode && !settled(cs) {
		r.logger.Info("checkout awaiting payment",
			"event_id", ev.ID,
			"session_id", cs.ID,
			"payment_status", cs.PaymentStatus,
		)
		return OutcomeDeferred, nil
	}

	plan := r.catalog.Resolve("", cs.Metadata["plan_key"])

	return r.commit(ctx, ev, func(tx Tx) (Outcome, error) {
		customer := customerID(cs.Customer)
		userID, err := r.resolveUser(ctx, tx, cs.Metadata, cs.ClientReferenceID,
			customer, subscriptionRef(cs.Subscription))
		if err != nil {
			return "", err
		}

		created, err := tx.Purchases().Insert(ctx, &Purchase{
			StripeCheckoutSessionID: cs.ID,
			UserID:                  userID,
			PlanKey:                 plan.Key,
			Mode:                    string(cs.Mode),
			Status:                  string(cs.PaymentStatus),
			AmountTotal:             cs.AmountTotal,
			Currency:                string(cs.Currency),
		})
		if err != nil {
			return "", err
		}
		if !created {
			return OutcomeDuplicate, nil
		}

		if customer != "" {
			if err := tx.Customers().SetStripeCustomerID(ctx, userID, customer); err != nil {
				return "", err
			}
		}

		if !paymentMode {
			return OutcomeApplied, nil
		}

		rec := entitlement.Lifetime(userID, plan.Feature, r.now().UTC())
		if err := tx.Entitlements().Upsert(ctx, &rec); err != nil {
			return "", err
		}

		r.logger.Info("lifetime access granted",
			"user_id", userID,
			"feature", plan.Feature,
			"session_id", cs.ID,
		)
		return OutcomeApplied, nil
	})
}

func (r *Reconciler) subscriptionChanged(ctx context.Context, ev Event) (Outcome, error) {
	sub, err := decode[stripe.Subscription](ev)
	if err != nil {
		return "", err
	}
	if sub.ID == "" {
		return "", fmt.Errorf("%w: subscription without id", core.ErrInconsistent)
	}

	snap := *snapshotFromStripe(sub)
	refetched := false

	needsRefetch, err := r.needsRefetch(ctx, ev, snap)
	if err != nil {
		return "", err
	}

	if needsRefetch {
		fresh, err := r.refetch(ctx, snap.ID)
		switch {
		case err == nil:
			snap = *fresh
			refetched = true
		case errors.Is(err, errNoProvider):
			r.logger.Warn("cannot refetch subscription",
				"event_id", ev.ID,
				"subscription_id", snap.ID,
			)
		default:
			return "", err
		}
	}

	return r.commit(ctx, ev, func(tx Tx) (Outcome, error) {
		return r.applySubscription(ctx, tx, ev, snap, refetched)
	})
}

// needsRefetch reports whether the payload alone cannot be trusted: refetch
// is forced by config, the payload is active without a period end, or the
// event is not strictly newer than what the mirror already holds. Event
// timestamps have one-second resolution, so a tie says nothing about order.
func (r *Reconciler) needsRefetch(
	ctx context.Context,
	ev Event,
	snap SubscriptionSnapshot,
) (bool, error) {
	if r.alwaysRefetch || (snap.Status.Entitles() && snap.CurrentPeriodEnd == nil) {
		return true, nil
	}

	mirror, err := r.store.Subscriptions().GetByStripeID(ctx, snap.ID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if mirror.Status.Terminal() {
		return false, nil
	}
	return !ev.Created.After(mirror.LastEventAt), nil
}

func (r *Reconciler) applySubscription(
	ctx context.Context,
	tx Tx,
	ev Event,
	snap SubscriptionSnapshot,
	refetched bool,
) (Outcome, error) {
	userID, err := r.resolveUser(ctx, tx, snap.Metadata, "", snap.CustomerID, snap.ID)
	if err != nil {
		return "", err
	}

	mirror, err := r.lockMirror(ctx, tx, userID)
	if err != nil {
		return "", err
	}

	if skip, outcome := r.shouldSkip(ev, mirror, snap, refetched); skip {
		return outcome, nil
	}

	active := snap.Status.Entitles()
	if active && snap.CurrentPeriodEnd == nil {
		return "", fmt.Errorf(
			"%w: subscription %s is %s without a period end",
			core.ErrInconsistent,
			snap.ID,
			snap.Status,
		)
	}

	plan := r.catalog.Resolve(snap.PriceID, snap.Metadata["plan_key"])
	if err := r.writeMirror(ctx, tx, ev, userID, plan, snap, mirror); err != nil {
		return "", err
	}

	now := r.now().UTC()
	if active && !snap.CurrentPeriodEnd.After(now) {
		r.logger.Warn("subscription period already ended, access not granted",
			"event_id", ev.ID,
			"user_id", userID,
			"subscription_id", snap.ID,
			"current_period_end", snap.CurrentPeriodEnd,
		)
		active = false
	}

	if snap.Status.Provisional() {
		r.logger.Info("provisional subscription mirrored",
			"user_id", userID,
			"subscription_id", snap.ID,
			"status", snap.Status,
		)
		return OutcomeApplied, nil
	}

	if err := r.writeSubscriptionAccess(ctx, tx, userID, plan.Feature, active, snap.CurrentPeriodEnd); err != nil {
		return "", err
	}

	return OutcomeApplied, nil
}

func (r *Reconciler) shouldSkip(
	ev Event,
	mirror *Subscription,
	snap SubscriptionSnapshot,
	refetched bool,
) (bool, Outcome) {
	if mirror == nil {
		return false, ""
	}

	if mirror.StripeSubscriptionID == snap.ID {
		if refetched {
			return false, ""
		}
		if mirror.Status.Terminal() && !snap.Status.Terminal() {
			r.logger.Info("event for ended subscription ignored",
				"event_id", ev.ID,
				"subscription_id", snap.ID,
				"status", snap.Status,
			)
			return true, OutcomeStale
		}
		if !ev.Created.After(mirror.LastEventAt) {
			r.logger.Info("stale subscription event ignored",
				"event_id", ev.ID,
				"subscription_id", snap.ID,
				"event_created", ev.Created,
				"last_event_at", mirror.LastEventAt,
			)
			return true, OutcomeStale
		}
		return false, ""
	}

	if mirror.Status.Entitles() && !snap.Status.Entitles() {
		r.logger.Info("event for superseded subscription ignored",
			"event_id", ev.ID,
			"subscription_id", snap.ID,
			"current_subscription_id", mirror.StripeSubscriptionID,
		)
		return true, OutcomeIgnored
	}

	return false, ""
}

func (r *Reconciler) lockMirror(ctx context.Context, tx Tx, userID string) (*Subscription, error) {
	mirror, err := tx.Subscriptions().GetByUserID(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return mirror, err
}

func (r *Reconciler) writeMirror(
	ctx context.Context,
	tx Tx,
	ev Event,
	userID string,
	plan Plan,
	snap SubscriptionSnapshot,
	mirror *Subscription,
) error {
	lastEventAt := ev.Created.UTC()
	if mirror != nil && mirror.LastEventAt.After(lastEventAt) {
		lastEventAt = mirror.LastEventAt
	}

	sub := &Subscription{
		UserID:               userID,
		StripeSubscriptionID: snap.ID,
		StripeCustomerID:     snap.CustomerID,
		Status:               snap.Status,
		PlanKey:              plan.Key,
		PriceID:              snap.PriceID,
		UnitAmount:           snap.UnitAmount,
		Currency:             snap.Currency,
		Interval:             snap.Interval,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:    snap.CancelAtPeriodEnd,
		LastEventAt:          lastEventAt,
	}
	if mirror != nil {
		sub.ID = mirror.ID
		if sub.StripeCustomerID == "" {
			sub.StripeCustomerID = mirror.StripeCustomerID
		}
	}

	if err := tx.Subscriptions().Upsert(ctx, sub); err != nil {
		return err
	}

	if snap.CustomerID != "" {
		return tx.Customers().SetStripeCustomerID(ctx, userID, snap.CustomerID)
	}
	return nil
}

// writeSubscriptionAccess never downgrades an active lifetime entitlement.
func (r *Reconciler) writeSubscriptionAccess(
	ctx context.Context,
	tx Tx,
	userID, feature string,
	active bool,
	periodEnd *time.Time,
) error {
	current, err := tx.Entitlements().Get(ctx, userID, feature)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if keepsLifetime(current) {
		r.logger.Info("lifetime access kept over subscription change",
			"user_id", userID,
			"feature", feature,
		)
		return nil
	}

	rec := entitlement.Subscription(userID, feature, active, periodEnd, r.now().UTC())
	return tx.Entitlements().Upsert(ctx, &rec)
}

func keepsLifetime(rec *entitlement.Record) bool {
	return rec != nil && rec.Access == entitlement.AccessLifetime && rec.IsActive
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, ev Event) (Outcome, error) {
	sub, err := decode[stripe.Subscription](ev)
	if err != nil {
		return "", err
	}
	if sub.ID == "" {
		return "", fmt.Errorf("%w: subscription without id", core.ErrInconsistent)
	}

	snap := *snapshotFromStripe(sub)
	snap.Status = StatusCanceled

	return r.commit(ctx, ev, func(tx Tx) (Outcome, error) {
		userID, err := r.resolveUser(ctx, tx, snap.Metadata, "", snap.CustomerID, snap.ID)
		if err != nil {
			return "", err
		}

		mirror, err := r.lockMirror(ctx, tx, userID)
		if err != nil {
			return "", err
		}
		if skip, outcome := r.shouldSkip(ev, mirror, snap, true); skip {
			return outcome, nil
		}

		plan := r.catalog.Resolve(snap.PriceID, snap.Metadata["plan_key"])
		if err := r.writeMirror(ctx, tx, ev, userID, plan, snap, mirror); err != nil {
			return "", err
		}

		current, err := tx.Entitlements().Get(ctx, userID, plan.Feature)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return "", err
		}
		if keepsLifetime(current) {
			return OutcomeApplied, nil
		}

		rec := entitlement.Free(userID, plan.Feature, r.now().UTC())
		if err := tx.Entitlements().Upsert(ctx, &rec); err != nil {
			return "", err
		}

		r.logger.Info("subscription ended",
			"user_id", userID,
			"subscription_id", snap.ID,
		)
		return OutcomeApplied, nil
	})
}

func (r *Reconciler) paymentFailed(ctx context.Context, ev Event) (Outcome, error) {
	inv, err := decode[stripe.Invoice](ev)
	if err != nil {
		return "", err
	}

	subID := invoiceSubscriptionID(inv)
	if subID == "" {
		return OutcomeIgnored, nil
	}

	return r.commit(ctx, ev, func(tx Tx) (Outcome, error) {
		mirror, err := tx.Subscriptions().GetByStripeID(ctx, subID)
		if errors.Is(err, core.ErrNotFound) {
			r.logger.Warn("payment failed for unknown subscription",
				"event_id", ev.ID,
				"subscription_id", subID,
			)
			return OutcomeIgnored, nil
		}
		if err != nil {
			return "", err
		}

		if mirror.Status.Terminal() || ev.Created.Before(mirror.LastEventAt) {
			return OutcomeStale, nil
		}

		mirror.Status = StatusPastDue
		mirror.LastEventAt = ev.Created.UTC()
		if err := tx.Subscriptions().Upsert(ctx, mirror); err != nil {
			return "", err
		}

		r.logger.Warn("subscription payment failed",
			"user_id", mirror.UserID,
			"subscription_id", subID,
			"policy", r.policy,
		)

		if r.policy != config.PaymentFailureDeactivate {
			return OutcomeApplied, nil
		}

		feature := r.catalog.Resolve(mirror.PriceID, mirror.PlanKey).Feature
		current, err := tx.Entitlements().Get(ctx, mirror.UserID, feature)
		if errors.Is(err, core.ErrNotFound) {
			return OutcomeApplied, nil
		}
		if err != nil {
			return "", err
		}
		if current.Access != entitlement.AccessSubscription || !current.IsActive {
			return OutcomeApplied, nil
		}

		rec := entitlement.Subscription(mirror.UserID, feature, false, current.ExpiresAt, r.now().UTC())
		if err := tx.Entitlements().Upsert(ctx, &rec); err != nil {
			return "", err
		}
		return OutcomeApplied, nil
	})
}

func (r *Reconciler) invoicePaid(ctx context.Context, ev Event) (Outcome, error) {
	inv, err := decode[stripe.Invoice](ev)
	if err != nil {
		return "", err
	}

	subID := invoiceSubscriptionID(inv)
	if subID == "" {
		return OutcomeIgnored, nil
	}

	fresh, err := r.refetch(ctx, subID)
	if errors.Is(err, errNoProvider) {
		r.logger.Warn("invoice paid but provider unavailable for resync",
			"event_id", ev.ID,
			"subscription_id", subID,
		)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}

	return r.commit(ctx, ev, func(tx Tx) (Outcome, error) {
		return r.applySubscription(ctx, tx, ev, *fresh, true)
	})
}

// Resync refetches a user's subscription and applies it as authoritative.
func (r *Reconciler) Resync(ctx context.Context, userID string) (Outcome, error) {
	mirror, err := r.store.Subscriptions().GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}

	fresh, err := r.refetch(ctx, mirror.StripeSubscriptionID)
	if err != nil {
		return "", err
	}

	ev := Event{Type: eventResync, Created: r.now().UTC()}
	return r.commit(ctx, ev, func(tx Tx) (Outcome, error) {
		return r.applySubscription(ctx, tx, ev, *fresh, true)
	})
}

func (r *Reconciler) refetch(ctx context.Context, subID string) (*SubscriptionSnapshot, error) {
	if r.provider == nil {
		return nil, errNoProvider
	}

	v, err, _ := r.refetches.Do(subID, func() (any, error) {
		return r.provider.GetSubscription(ctx, subID)
	})
	if err != nil {
		metrics.ProviderRefetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ProviderRefetches.WithLabelValues("ok").Inc()

	snap, ok := v.(*SubscriptionSnapshot)
	if !ok || snap == nil {
		return nil, fmt.Errorf("%w: empty subscription %s", core.ErrInconsistent, subID)
	}
	return snap, nil
}

// resolveUser tries metadata, then the checkout reference, then the
// customer mapping, then the subscription mirror.
func (r *Reconciler) resolveUser(
	ctx context.Context,
	tx Tx,
	metadata map[string]string,
	clientReference, customerID, subscriptionID string,
) (string, error) {
	if id := metadata["user_id"]; id != "" {
		return id, nil
	}
	if clientReference != "" {
		return clientReference, nil
	}

	if customerID != "" {
		u, err := tx.Customers().GetByStripeCustomerID(ctx, customerID)
		if err == nil {
			return u.ID, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return "", err
		}
	}

	if subscriptionID != "" {
		sub, err := tx.Subscriptions().GetByStripeID(ctx, subscriptionID)
		if err == nil {
			return sub.UserID, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return "", err
		}
	}

	return "", fmt.Errorf(
		"%w: customer=%q subscription=%q",
		ErrUnknownUser,
		customerID,
		subscriptionID,
	)
}
