// Package stripe implements a billing.Provider backed by Stripe Checkout,
// the customer portal, and webhook-driven subscription reconciliation.
//
// The provider keeps the durable per-user subscription record in a
// subscription.Store in sync with Stripe's view of the world. Every write
// replaces the subscription sub-document wholesale, so webhook replays and
// out-of-order deliveries converge on the same state.
package stripe

import (
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/billingbridge/pkg/billing"
	"github.com/mihaimyh/billingbridge/pkg/billing/dedup"
	"github.com/mihaimyh/billingbridge/pkg/billing/internal"
	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

const (
	providerName = "stripe"

	// metadataUserIDKey is stamped on checkout sessions, customers and
	// subscriptions so webhook events can be correlated back to a user.
	metadataUserIDKey = "uniqueUserId"
	metadataPlanKey   = "plan"

	maxWebhookBodySize = 256 * 1024
)

// Config holds the Stripe provider configuration.
type Config struct {
	// APIKey is the Stripe secret key. Required unless a custom backend is
	// injected for tests.
	APIKey string

	// WebhookSecret is the signing secret for webhook verification. The
	// webhook handler refuses to process events without it.
	WebhookSecret string

	// PlanPrices maps purchasable plans to Stripe price IDs.
	PlanPrices map[subscription.Plan]string

	// SuccessURL is where Checkout redirects after payment. The session ID
	// placeholder is appended automatically.
	SuccessURL string

	// CancelURL is where Checkout redirects when the user backs out.
	CancelURL string

	// PortalReturnURL is where the customer portal sends users afterwards.
	PortalReturnURL string

	// Store is the durable user record store. Required.
	Store subscription.Store

	// Guard deduplicates webhook event IDs. Optional; defaults to an
	// in-memory guard.
	Guard dedup.Guard

	// RateLimit caps webhook requests per IP per minute. Zero disables
	// rate limiting.
	RateLimit int

	Logger  subscription.Logger
	Metrics billing.Metrics
}

// Provider implements billing.Provider using Stripe.
type Provider struct {
	api           backend
	store         subscription.Store
	guard         dedup.Guard
	planPrices    map[subscription.Plan]string
	webhookSecret string
	successURL    string
	cancelURL     string
	returnURL     string
	rateLimiter   *internal.RateLimiter
	logger        subscription.Logger
	metrics       billing.Metrics
	now           subscription.TimeSource
}

// NewProvider creates a Stripe billing provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("%w: store is required", billing.ErrProviderNotConfigured)
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", billing.ErrProviderNotConfigured)
	}
	logger := config.Logger
	if logger == nil {
		logger = &subscription.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	guard := config.Guard
	if guard == nil {
		guard = dedup.NewMemory(24 * time.Hour)
	}

	var limiter *internal.RateLimiter
	if config.RateLimit > 0 {
		limiter = internal.NewRateLimiter(config.RateLimit, time.Minute)
	}

	return &Provider{
		api:           &clientBackend{client: stripe.NewClient(config.APIKey)},
		store:         config.Store,
		guard:         guard,
		planPrices:    config.PlanPrices,
		webhookSecret: config.WebhookSecret,
		successURL:    config.SuccessURL,
		cancelURL:     config.CancelURL,
		returnURL:     config.PortalReturnURL,
		rateLimiter:   limiter,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}, nil
}

// Name implements billing.Provider.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler implements billing.Provider.
func (p *Provider) WebhookHandler() http.Handler {
	var handler http.Handler = http.HandlerFunc(p.handleWebhook)
	if p.rateLimiter != nil {
		handler = p.rateLimiter.Middleware(handler)
	}
	return handler
}

// priceForPlan resolves the configured price ID for a purchasable plan.
func (p *Provider) priceForPlan(plan subscription.Plan) (string, error) {
	price, ok := p.planPrices[plan]
	if !ok || price == "" {
		return "", fmt.Errorf("%w: no price configured for plan %q", billing.ErrPlanNotConfigured, plan)
	}
	return price, nil
}

// planForPrice maps a Stripe price back to a plan. It tries the price
// nickname first, then the configured price table, and finally falls back to
// the plan already stored on the user so a rename on the Stripe side never
// corrupts the record.
func (p *Provider) planForPrice(price *stripe.Price, fallback subscription.Plan) subscription.Plan {
	if price != nil {
		if plan, ok := subscription.ParsePlan(price.Nickname); ok {
			return plan
		}
		for plan, id := range p.planPrices {
			if id == price.ID {
				return plan
			}
		}
	}
	return fallback
}
