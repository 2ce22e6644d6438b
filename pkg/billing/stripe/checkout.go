package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/billingbridge/pkg/billing"
	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

// CheckoutSession implements billing.Provider. Lifetime is a one-time
// payment, the recurring plans use subscription mode. The session carries the
// application user ID both as client reference and as metadata so the
// completed event can always be correlated.
func (p *Provider) CheckoutSession(ctx context.Context, uid string, plan subscription.Plan) (*billing.CheckoutSession, error) {
	if !plan.Purchasable() {
		return nil, fmt.Errorf("%w: plan %q is not purchasable", billing.ErrPlanNotConfigured, plan)
	}
	price, err := p.priceForPlan(plan)
	if err != nil {
		return nil, err
	}

	user, err := p.store.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, subscription.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", billing.ErrUserNotFound, uid)
		}
		return nil, fmt.Errorf("failed to load user %s: %w", uid, err)
	}

	mode := stripe.CheckoutSessionModeSubscription
	if !plan.Recurring() {
		mode = stripe.CheckoutSessionModePayment
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:               stripe.String(string(mode)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(price),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(p.successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(uid),
	}
	params.AddMetadata(metadataUserIDKey, uid)
	params.AddMetadata(metadataPlanKey, string(plan))

	// Reuse the existing customer so repeat purchases land on the same
	// Stripe customer object.
	if user.StripeCustomerID != "" {
		params.Customer = stripe.String(user.StripeCustomerID)
	}

	start := time.Now()
	session, err := p.api.CreateCheckoutSession(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "checkout_session_create", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "checkout_session_create", "error")
		p.logger.Error("failed to create checkout session",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "plan", Value: string(plan)},
			subscription.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("%w: %v", billing.ErrProviderAPIError, err)
	}
	p.metrics.RecordAPICall(providerName, "checkout_session_create", "success")

	p.logger.Info("checkout session created",
		subscription.Field{Key: "uid", Value: uid},
		subscription.Field{Key: "plan", Value: string(plan)},
		subscription.Field{Key: "session_id", Value: session.ID})

	return &billing.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// PortalURL implements billing.Provider.
func (p *Provider) PortalURL(ctx context.Context, uid string) (string, error) {
	user, err := p.store.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, subscription.ErrUserNotFound) {
			return "", fmt.Errorf("%w: %s", billing.ErrUserNotFound, uid)
		}
		return "", fmt.Errorf("failed to load user %s: %w", uid, err)
	}
	if user.StripeCustomerID == "" {
		return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, uid)
	}

	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(user.StripeCustomerID),
		ReturnURL: stripe.String(p.returnURL),
	}

	start := time.Now()
	session, err := p.api.CreatePortalSession(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "portal_session_create", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "portal_session_create", "error")
		return "", fmt.Errorf("%w: %v", billing.ErrProviderAPIError, err)
	}
	p.metrics.RecordAPICall(providerName, "portal_session_create", "success")
	return session.URL, nil
}
