// Package billing defines the payment-provider abstraction used by the HTTP
// layer. A provider owns checkout session creation, the customer portal, and
// the webhook endpoint that feeds the event reconciler.
package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

// CheckoutSession is the redirectable checkout a provider hands back.
type CheckoutSession struct {
	// ID is the provider-side session identifier.
	ID string

	// URL is where the caller navigates the user to complete the purchase.
	URL string
}

// Provider is the generic interface any billing backend must implement.
// The application only ever talks to this interface, so swapping the
// payment provider requires zero logic changes elsewhere.
type Provider interface {
	// Name returns the provider name (e.g. "stripe").
	Name() string

	// CheckoutSession creates a checkout session for the given user and plan
	// and returns its identifier and redirect URL. The session is stamped
	// with the application-level user identifier so asynchronous events can
	// be correlated back.
	CheckoutSession(ctx context.Context, uid string, plan subscription.Plan) (*CheckoutSession, error)

	// CompleteCheckout retrieves the given checkout session and reconciles
	// it as if the checkout-completed webhook had fired. Used on the
	// payment-success return trip, which can arrive before the webhook.
	CompleteCheckout(ctx context.Context, sessionID string) error

	// PortalURL creates a self-service management URL for an existing paying
	// customer. Fails with ErrCustomerNotFound if the user never purchased.
	PortalURL(ctx context.Context, uid string) (string, error)

	// WebhookHandler returns the HTTP handler that processes real-time
	// provider events. The implementation handles signature validation,
	// parsing, and record updates internally.
	WebhookHandler() http.Handler
}
