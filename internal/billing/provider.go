// AngelaMos | 2026
// provider.go

package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"

	"github.com/carterperez-dev/dreamdiary-backend/internal/config"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
)

// Provider is the subset of the payment platform the service calls out to.
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*SubscriptionSnapshot, error)
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
}

type CheckoutRequest struct {
	UserID     string
	CustomerID string
	Plan       Plan
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type StripeProvider struct {
	client *stripe.Client
	cfg    config.StripeConfig
}

// NewStripeProvider keeps its own client so the package-level stripe.Key is
// never touched.
func NewStripeProvider(cfg config.StripeConfig, opts ...stripe.ClientOption) *StripeProvider {
	return &StripeProvider{
		client: stripe.NewClient(cfg.SecretKey, opts...),
		cfg:    cfg,
	}
}

func (p *StripeProvider) GetSubscription(
	ctx context.Context,
	id string,
) (*SubscriptionSnapshot, error) {
	sub, err := p.client.V1Subscriptions.Retrieve(ctx, id, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) &&
			stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, fmt.Errorf("fetch subscription %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch subscription %s: %w: %w", id, core.ErrUnavailable, err)
	}

	return snapshotFromStripe(sub), nil
}

func (p *StripeProvider) CreateCustomer(
	ctx context.Context,
	userID, email string,
) (string, error) {
	params := &stripe.CustomerCreateParams{
		Metadata: map[string]string{"user_id": userID},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}

	cust, err := p.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	return cust.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(
	ctx context.Context,
	req CheckoutRequest,
) (*CheckoutSession, error) {
	metadata := map[string]string{
		"user_id":  req.UserID,
		"plan_key": req.Plan.Key,
	}

	params := &stripe.CheckoutSessionCreateParams{
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			Price:    stripe.String(req.Plan.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(p.cfg.SuccessURL),
		CancelURL:  stripe.String(p.cfg.CancelURL),
		Metadata:   metadata,
	}

	if req.Plan.Lifetime() {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: metadata,
		}
	}

	sess, err := p.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) CreatePortalSession(
	ctx context.Context,
	customerID string,
) (string, error) {
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(p.cfg.PortalReturnURL),
	}

	sess, err := p.client.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}

	return sess.URL, nil
}
