package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/billingbridge/pkg/billing"
	"github.com/mihaimyh/billingbridge/pkg/billing/internal"
	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodySize)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	event, err := stripe.ConstructEvent(body, sig, p.webhookSecret)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	// The reconciler converges on replays anyway, so an unavailable guard
	// fails open rather than dropping the event.
	seen, err := p.guard.CheckAndMark(r.Context(), event.ID)
	if err != nil {
		p.logger.Warn("webhook dedup guard unavailable",
			subscription.Field{Key: "event_id", Value: event.ID},
			subscription.Field{Key: "error", Value: err.Error()})
	} else if seen {
		p.ackWebhook(w)
		p.metrics.RecordWebhookEvent(providerName, eventType, "duplicate")
		return
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		if errors.Is(err, billing.ErrCorrelationFailed) || errors.Is(err, billing.ErrUserNotFound) {
			// No way to attribute this event to a user. Acknowledge so
			// Stripe stops retrying; the record is untouched.
			p.logger.Warn("webhook event dropped",
				subscription.Field{Key: "event_id", Value: event.ID},
				subscription.Field{Key: "event_type", Value: eventType},
				subscription.Field{Key: "reason", Value: err.Error()})
			p.ackWebhook(w)
			p.metrics.RecordWebhookEvent(providerName, eventType, "dropped")
			p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
			return
		}

		// Unmark so a Stripe redelivery gets a second chance.
		if forgetErr := p.guard.Forget(r.Context(), event.ID); forgetErr != nil {
			p.logger.Warn("failed to unmark webhook event",
				subscription.Field{Key: "event_id", Value: event.ID},
				subscription.Field{Key: "error", Value: forgetErr.Error()})
		}
		p.logger.Error("webhook processing failed",
			subscription.Field{Key: "event_id", Value: event.ID},
			subscription.Field{Key: "event_type", Value: eventType},
			subscription.Field{Key: "error", Value: err.Error()})
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	p.ackWebhook(w)
	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

func (p *Provider) ackWebhook(w http.ResponseWriter) {
	_ = internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// processWebhookEvent routes a verified event to the matching reconciler path.
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("%w: checkout session: %v", billing.ErrInvalidWebhookPayload, err)
		}
		return p.reconcileCheckoutSession(ctx, &session)

	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"customer.subscription.trial_will_end":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
		}
		return p.reconcileSubscription(ctx, &sub)

	case "invoice.payment_succeeded", "invoice.payment_failed":
		return p.handleInvoiceEvent(ctx, event)

	default:
		// Unknown event type - ignore silently
		return nil
	}
}

// handleInvoiceEvent re-derives the user's state from the invoice's parent
// subscription. The invoice itself carries no decision the subscription
// object doesn't, so both success and failure run the same lifecycle path.
func (p *Provider) handleInvoiceEvent(ctx context.Context, event *stripe.Event) error {
	subscriptionID := invoiceSubscriptionID(event.Data.Raw)
	if subscriptionID == "" {
		// Not a subscription invoice - ignore
		return nil
	}

	start := time.Now()
	sub, err := p.api.RetrieveSubscription(ctx, subscriptionID)
	p.metrics.RecordAPICallDuration(providerName, "subscription_retrieve", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "subscription_retrieve", "error")
		return fmt.Errorf("failed to fetch subscription %s: %w", subscriptionID, err)
	}
	p.metrics.RecordAPICall(providerName, "subscription_retrieve", "success")

	return p.reconcileSubscription(ctx, sub)
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// invoiceSubscriptionID pulls the subscription reference out of the raw
// invoice JSON. Depending on API version it arrives as a bare ID string or
// as an expanded object.
func invoiceSubscriptionID(raw json.RawMessage) string {
	var rawData map[string]interface{}
	if err := json.Unmarshal(raw, &rawData); err != nil {
		return ""
	}
	switch v := rawData["subscription"].(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}
