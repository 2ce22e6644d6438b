package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v83"
)

// backend is the narrow slice of the Stripe API the provider touches.
// Production uses the real stripe.Client; tests substitute a fake so the
// reconciler can be exercised without network access.
type backend interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error)
	RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error)
}

// clientBackend implements backend over the official client (v83 API).
type clientBackend struct {
	client *stripe.Client
}

func (b *clientBackend) CreateCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	return b.client.V1CheckoutSessions.Create(ctx, params)
}

func (b *clientBackend) RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	return b.client.V1CheckoutSessions.Retrieve(ctx, id, nil)
}

func (b *clientBackend) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return b.client.V1Subscriptions.Retrieve(ctx, id, nil)
}

func (b *clientBackend) UpdateSubscription(
	ctx context.Context, id string, params *stripe.SubscriptionUpdateParams,
) (*stripe.Subscription, error) {
	return b.client.V1Subscriptions.Update(ctx, id, params)
}

func (b *clientBackend) RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	return b.client.V1Customers.Retrieve(ctx, id, nil)
}

func (b *clientBackend) UpdateCustomer(
	ctx context.Context, id string, params *stripe.CustomerUpdateParams,
) (*stripe.Customer, error) {
	return b.client.V1Customers.Update(ctx, id, params)
}

func (b *clientBackend) CreatePortalSession(
	ctx context.Context, params *stripe.BillingPortalSessionCreateParams,
) (*stripe.BillingPortalSession, error) {
	return b.client.V1BillingPortalSessions.Create(ctx, params)
}
