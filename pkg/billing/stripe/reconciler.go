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

// CompleteCheckout implements billing.Provider. The payment-success return
// trip races the checkout.session.completed webhook; both run the same
// reconciliation, and since every write replaces the sub-document wholesale
// the second arrival is a no-op.
func (p *Provider) CompleteCheckout(ctx context.Context, sessionID string) error {
	start := time.Now()
	session, err := p.api.RetrieveCheckoutSession(ctx, sessionID)
	p.metrics.RecordAPICallDuration(providerName, "checkout_session_retrieve", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "checkout_session_retrieve", "error")
		return fmt.Errorf("%w: retrieve checkout session %s: %v", billing.ErrProviderAPIError, sessionID, err)
	}
	p.metrics.RecordAPICall(providerName, "checkout_session_retrieve", "success")

	return p.reconcileCheckoutSession(ctx, session)
}

// reconcileCheckoutSession applies a completed checkout to the user record:
// persists the customer reference, backfills correlation metadata on the
// Stripe side, and writes the new subscription sub-document.
func (p *Provider) reconcileCheckoutSession(ctx context.Context, session *stripe.CheckoutSession) error {
	uid := session.ClientReferenceID
	if uid == "" && session.Metadata != nil {
		uid = session.Metadata[metadataUserIDKey]
	}
	if uid == "" {
		return fmt.Errorf("%w: checkout session %s carries no user reference", billing.ErrCorrelationFailed, session.ID)
	}

	user, err := p.store.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, subscription.ErrUserNotFound) {
			return fmt.Errorf("%w: %s (checkout session %s)", billing.ErrUserNotFound, uid, session.ID)
		}
		return fmt.Errorf("failed to load user %s: %w", uid, err)
	}

	if session.Customer != nil && session.Customer.ID != "" {
		p.persistCustomer(ctx, uid, session.Customer.ID)
	}

	planName := ""
	if session.Metadata != nil {
		planName = session.Metadata[metadataPlanKey]
	}
	plan, ok := subscription.ParsePlan(planName)
	if !ok || !plan.Purchasable() {
		return fmt.Errorf("%w: checkout session %s carries no plan", billing.ErrCorrelationFailed, session.ID)
	}

	now := p.now().UTC()

	if !plan.Recurring() {
		// One-time payment, no subscription object behind it.
		return p.writeSubscription(ctx, uid, user.Subscription, &subscription.Subscription{
			Status:    subscription.StatusActive,
			Plan:      plan,
			StartDate: now,
		})
	}

	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if subscriptionID == "" {
		// The session should reference a subscription but doesn't; grant
		// access now and let the next subscription event fill in the dates.
		p.logger.Warn("checkout session missing subscription reference",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "session_id", Value: session.ID})
		return p.writeSubscription(ctx, uid, user.Subscription, &subscription.Subscription{
			Status:    subscription.StatusActive,
			Plan:      plan,
			StartDate: now,
		})
	}

	start := time.Now()
	sub, err := p.api.RetrieveSubscription(ctx, subscriptionID)
	p.metrics.RecordAPICallDuration(providerName, "subscription_retrieve", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "subscription_retrieve", "error")
		// Degraded write: the user paid, so access starts now even though
		// the period dates are unknown. A later webhook corrects them.
		p.logger.Warn("failed to fetch subscription after checkout, storing degraded record",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "subscription_id", Value: subscriptionID},
			subscription.Field{Key: "error", Value: err.Error()})
		return p.writeSubscription(ctx, uid, user.Subscription, &subscription.Subscription{
			Status:    subscription.StatusActive,
			Plan:      plan,
			StartDate: now,
		})
	}
	p.metrics.RecordAPICall(providerName, "subscription_retrieve", "success")

	p.backfillSubscriptionMetadata(ctx, sub, uid)

	record := &subscription.Subscription{
		Status:               subscription.StatusActive,
		Plan:                 p.planForPrice(firstPrice(sub), plan),
		StartDate:            now,
		StripeSubscriptionID: sub.ID,
	}
	if periodStart, periodEnd, ok := subscriptionPeriod(sub); ok {
		record.StartDate = periodStart
		record.EndDate = &periodEnd
	}
	return p.writeSubscription(ctx, uid, user.Subscription, record)
}

// reconcileSubscription maps a Stripe subscription object onto the stored
// record. Only three shapes mutate state: a pending cancellation, a
// reactivation after one, and a plain active subscription (renewal or plan
// switch). Everything else is ignored so transient provider states never
// corrupt the record.
func (p *Provider) reconcileSubscription(ctx context.Context, sub *stripe.Subscription) error {
	uid, err := p.resolveUserID(ctx, sub)
	if err != nil {
		return err
	}

	user, err := p.store.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, subscription.ErrUserNotFound) {
			return fmt.Errorf("%w: %s (subscription %s)", billing.ErrUserNotFound, uid, sub.ID)
		}
		return fmt.Errorf("failed to load user %s: %w", uid, err)
	}
	prev := user.Subscription

	fallbackPlan := subscription.PlanMonthly
	if prev != nil && prev.Plan.Purchasable() {
		fallbackPlan = prev.Plan
	}
	plan := p.planForPrice(firstPrice(sub), fallbackPlan)
	periodStart, periodEnd, hasPeriod := subscriptionPeriod(sub)
	now := p.now().UTC()

	switch {
	case sub.CancelAtPeriodEnd:
		// Canceled but paid through the period: access continues until
		// the period end, under whatever plan is already stored.
		record := &subscription.Subscription{
			Status:               subscription.StatusActiveCanceling,
			Plan:                 plan,
			StartDate:            periodStart,
			StripeSubscriptionID: sub.ID,
		}
		if prev != nil {
			if prev.Plan.Purchasable() {
				record.Plan = prev.Plan
			}
			if !prev.StartDate.IsZero() {
				record.StartDate = prev.StartDate
			}
		}
		if hasPeriod {
			record.EndDate = &periodEnd
		} else if prev != nil && prev.EndDate != nil {
			record.EndDate = prev.EndDate
		}
		if record.EndDate == nil {
			// active_canceling without an end date could never expire;
			// leave the record alone until an event carries the period.
			p.logger.Warn("cancellation event carries no period end, skipping",
				subscription.Field{Key: "uid", Value: uid},
				subscription.Field{Key: "subscription_id", Value: sub.ID})
			return nil
		}
		canceledAt := now
		if sub.CanceledAt > 0 {
			canceledAt = time.Unix(sub.CanceledAt, 0).UTC()
		}
		record.CanceledAt = &canceledAt
		return p.writeSubscription(ctx, uid, prev, record)

	case sub.Status == stripe.SubscriptionStatusActive && prev != nil && prev.Status == subscription.StatusActiveCanceling:
		// Cancellation was revoked before the period ran out.
		record := &subscription.Subscription{
			Status:               subscription.StatusActive,
			Plan:                 plan,
			StartDate:            periodStart,
			StripeSubscriptionID: sub.ID,
		}
		if hasPeriod {
			record.EndDate = &periodEnd
		}
		return p.writeSubscription(ctx, uid, prev, record)

	case sub.Status == stripe.SubscriptionStatusActive:
		// Renewal or plan switch: roll the dates forward.
		record := &subscription.Subscription{
			Status:               subscription.StatusActive,
			Plan:                 plan,
			StartDate:            periodStart,
			StripeSubscriptionID: sub.ID,
		}
		if hasPeriod {
			record.EndDate = &periodEnd
		}
		if prev != nil {
			record.CanceledAt = prev.CanceledAt
		}
		return p.writeSubscription(ctx, uid, prev, record)

	default:
		p.logger.Debug("ignoring subscription state",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "subscription_id", Value: sub.ID},
			subscription.Field{Key: "stripe_status", Value: string(sub.Status)})
		return nil
	}
}

// writeSubscription replaces the stored sub-document and records the plan
// transition.
func (p *Provider) writeSubscription(
	ctx context.Context, uid string, prev, next *subscription.Subscription,
) error {
	if err := p.store.MergeSubscription(ctx, uid, next); err != nil {
		return fmt.Errorf("failed to store subscription for %s: %w", uid, err)
	}

	prevPlan := "none"
	if prev != nil && prev.Plan != "" {
		prevPlan = string(prev.Plan)
	}
	if prevPlan != string(next.Plan) {
		p.metrics.RecordPlanChange(providerName, prevPlan, string(next.Plan))
	}

	p.logger.Info("subscription record updated",
		subscription.Field{Key: "uid", Value: uid},
		subscription.Field{Key: "status", Value: string(next.Status)},
		subscription.Field{Key: "plan", Value: string(next.Plan)})
	return nil
}

// resolveUserID correlates a Stripe subscription back to an application user.
// It checks subscription metadata, then customer metadata, then falls back to
// a reverse store lookup by customer ID. A hit on the fallback backfills the
// missing metadata so the next event resolves on the first try.
func (p *Provider) resolveUserID(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if sub.Metadata != nil {
		if uid := sub.Metadata[metadataUserIDKey]; uid != "" {
			return uid, nil
		}
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	if customerID == "" {
		return "", fmt.Errorf("%w: subscription %s has no metadata and no customer", billing.ErrCorrelationFailed, sub.ID)
	}

	start := time.Now()
	cust, err := p.api.RetrieveCustomer(ctx, customerID)
	p.metrics.RecordAPICallDuration(providerName, "customer_retrieve", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "customer_retrieve", "error")
	} else {
		p.metrics.RecordAPICall(providerName, "customer_retrieve", "success")
		if cust.Metadata != nil {
			if uid := cust.Metadata[metadataUserIDKey]; uid != "" {
				return uid, nil
			}
		}
	}

	user, err := p.store.GetUserByCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, subscription.ErrUserNotFound) {
			return "", fmt.Errorf("%w: customer %s matches no user record", billing.ErrCorrelationFailed, customerID)
		}
		return "", fmt.Errorf("reverse customer lookup failed for %s: %w", customerID, err)
	}

	p.backfillCustomerMetadata(ctx, customerID, user.UID)
	p.backfillSubscriptionMetadata(ctx, sub, user.UID)
	return user.UID, nil
}

// persistCustomer stores the Stripe customer reference on the user record and
// stamps the user ID onto the customer. Failures here only cost the metadata
// shortcut on future events, so they are logged and swallowed.
func (p *Provider) persistCustomer(ctx context.Context, uid, customerID string) {
	start := time.Now()
	cust, err := p.api.RetrieveCustomer(ctx, customerID)
	p.metrics.RecordAPICallDuration(providerName, "customer_retrieve", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "customer_retrieve", "error")
		p.logger.Warn("failed to fetch customer",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "customer_id", Value: customerID},
			subscription.Field{Key: "error", Value: err.Error()})
		return
	}
	p.metrics.RecordAPICall(providerName, "customer_retrieve", "success")

	details := subscription.CustomerDetails{StripeCustomerID: customerID, StripeEmail: cust.Email}
	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		details.StripeDefaultPaymentMethod = cust.InvoiceSettings.DefaultPaymentMethod.ID
	}
	if err := p.store.SetCustomer(ctx, uid, details); err != nil {
		p.logger.Warn("failed to persist customer details",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "customer_id", Value: customerID},
			subscription.Field{Key: "error", Value: err.Error()})
	}

	if cust.Metadata == nil || cust.Metadata[metadataUserIDKey] == "" {
		p.backfillCustomerMetadata(ctx, customerID, uid)
	}
}

func (p *Provider) backfillCustomerMetadata(ctx context.Context, customerID, uid string) {
	params := &stripe.CustomerUpdateParams{}
	params.AddMetadata(metadataUserIDKey, uid)

	start := time.Now()
	_, err := p.api.UpdateCustomer(ctx, customerID, params)
	p.metrics.RecordAPICallDuration(providerName, "customer_update", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "customer_update", "error")
		p.logger.Warn("failed to backfill customer metadata",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "customer_id", Value: customerID},
			subscription.Field{Key: "error", Value: err.Error()})
		return
	}
	p.metrics.RecordAPICall(providerName, "customer_update", "success")
}

func (p *Provider) backfillSubscriptionMetadata(ctx context.Context, sub *stripe.Subscription, uid string) {
	if sub.Metadata != nil && sub.Metadata[metadataUserIDKey] != "" {
		return
	}
	params := &stripe.SubscriptionUpdateParams{}
	params.AddMetadata(metadataUserIDKey, uid)

	start := time.Now()
	_, err := p.api.UpdateSubscription(ctx, sub.ID, params)
	p.metrics.RecordAPICallDuration(providerName, "subscription_update", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "subscription_update", "error")
		p.logger.Warn("failed to backfill subscription metadata",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "subscription_id", Value: sub.ID},
			subscription.Field{Key: "error", Value: err.Error()})
		return
	}
	p.metrics.RecordAPICall(providerName, "subscription_update", "success")
}

// firstPrice returns the price on the first subscription item, if any.
func firstPrice(sub *stripe.Subscription) *stripe.Price {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0].Price
}

// subscriptionPeriod reads the current billing period. In the v83 API the
// period lives on the subscription items, not the subscription itself.
func subscriptionPeriod(sub *stripe.Subscription) (start, end time.Time, ok bool) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return time.Time{}, time.Time{}, false
	}
	item := sub.Items.Data[0]
	if item.CurrentPeriodStart == 0 || item.CurrentPeriodEnd == 0 {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(item.CurrentPeriodStart, 0).UTC(), time.Unix(item.CurrentPeriodEnd, 0).UTC(), true
}
