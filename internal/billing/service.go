// AngelaMos | 2026
// service.go

package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement"
)

// AccountSnapshot is everything billing knows about one user.
type AccountSnapshot struct {
	UserID           string               `json:"user_id"`
	StripeCustomerID string               `json:"stripe_customer_id,omitempty"`
	Entitlements     []entitlement.Record `json:"entitlements"`
	Subscription     *Subscription        `json:"subscription,omitempty"`
	Purchases        []Purchase           `json:"purchases"`
}

type Service struct {
	store    Store
	provider Provider
	catalog  *Catalog
	logger   *slog.Logger
}

func NewService(store Store, provider Provider, catalog *Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		provider: provider,
		catalog:  catalog,
		logger:   logger,
	}
}

func (s *Service) Plans() []Plan {
	return s.catalog.Plans()
}

func (s *Service) Checkout(
	ctx context.Context,
	userID, email, planKey string,
) (*CheckoutSession, error) {
	if s.provider == nil {
		return nil, billingNotConfigured()
	}

	plan, ok := s.catalog.ByKey(planKey)
	if !ok {
		return nil, core.NewAppError(
			http.StatusUnprocessableEntity,
			"unknown_plan",
			"unknown plan "+planKey,
			core.ErrInvalidInput,
		)
	}

	customerID, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     userID,
		CustomerID: customerID,
		Plan:       plan,
	})
	if err != nil {
		return nil, core.UpstreamError("create checkout session", err)
	}

	s.logger.Info("checkout session created",
		"user_id", userID,
		"plan", plan.Key,
		"session_id", sess.ID,
	)
	return sess, nil
}

func (s *Service) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	u, err := s.store.Customers().GetByID(ctx, userID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", err
	}
	if id := u.CustomerID(); id != "" {
		return id, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", core.UpstreamError("create customer", err)
	}

	if err := s.store.Customers().SetStripeCustomerID(ctx, userID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

func (s *Service) Portal(ctx context.Context, userID string) (string, error) {
	if s.provider == nil {
		return "", billingNotConfigured()
	}

	u, err := s.store.Customers().GetByID(ctx, userID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", err
	}
	if !u.HasCustomer() {
		return "", core.NewAppError(
			http.StatusNotFound,
			"customer_not_found",
			"no billing account for this user",
			core.ErrNotFound,
		)
	}

	url, err := s.provider.CreatePortalSession(ctx, u.CustomerID())
	if err != nil {
		return "", core.UpstreamError("create portal session", err)
	}
	return url, nil
}

func (s *Service) Snapshot(ctx context.Context, userID string) (*AccountSnapshot, error) {
	snap := &AccountSnapshot{UserID: userID}

	u, err := s.store.Customers().GetByID(ctx, userID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	snap.StripeCustomerID = u.CustomerID()

	ents, err := s.store.Entitlements().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.Entitlements = ents

	sub, err := s.store.Subscriptions().GetByUserID(ctx, userID)
	switch {
	case err == nil:
		snap.Subscription = sub
	case !errors.Is(err, core.ErrNotFound):
		return nil, err
	}

	purchases, err := s.store.Purchases().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.Purchases = purchases

	return snap, nil
}

func billingNotConfigured() *core.AppError {
	return core.ConfigError("billing_not_configured", "billing is not configured")
}
