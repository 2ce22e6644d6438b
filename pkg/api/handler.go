// Package api exposes the HTTP surface consumed by the browser extension:
// sign-in, checkout, the payment return trip, subscription status, and the
// customer portal. The webhook endpoint is mounted from the billing provider.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/billingbridge/pkg/billing"
	"github.com/mihaimyh/billingbridge/pkg/identity"
	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

const (
	defaultCheckoutAttempts   = 3
	defaultCheckoutRetryDelay = 2 * time.Second

	maxRequestBodySize = 64 * 1024
)

// Config holds the handler dependencies.
type Config struct {
	// Service answers subscription status queries. Required.
	Service *subscription.Service

	// Provider is the billing backend. Required.
	Provider billing.Provider

	// Resolver handles federated sign-in. Optional; without it the
	// sign-in endpoint answers 503.
	Resolver *identity.Resolver

	// ExtensionURL is where the payment return trip redirects to.
	ExtensionURL string

	// CheckoutAttempts caps how often checkout creation is retried while
	// the user record is not visible yet. Default 3.
	CheckoutAttempts int

	// CheckoutRetryDelay is the spacing between those attempts. Default 2s.
	CheckoutRetryDelay time.Duration

	Logger subscription.Logger
}

// Handler implements the extension-facing endpoints.
type Handler struct {
	service          *subscription.Service
	provider         billing.Provider
	resolver         *identity.Resolver
	extensionURL     string
	checkoutAttempts int
	retryDelay       time.Duration
	logger           subscription.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(config Config) (*Handler, error) {
	if config.Service == nil {
		return nil, fmt.Errorf("subscription service is required")
	}
	if config.Provider == nil {
		return nil, fmt.Errorf("billing provider is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = &subscription.NoopLogger{}
	}
	attempts := config.CheckoutAttempts
	if attempts <= 0 {
		attempts = defaultCheckoutAttempts
	}
	delay := config.CheckoutRetryDelay
	if delay <= 0 {
		delay = defaultCheckoutRetryDelay
	}

	return &Handler{
		service:          config.Service,
		provider:         config.Provider,
		resolver:         config.Resolver,
		extensionURL:     config.ExtensionURL,
		checkoutAttempts: attempts,
		retryDelay:       delay,
		logger:           logger,
	}, nil
}

// CreateCheckoutSession handles POST /create-checkout-session.
//
// Sign-in and purchase can race: the extension fires the checkout request
// right after sign-in, and the user record may not be readable yet. A missing
// record is therefore retried a few times before it becomes a terminal 404.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UniqueUserID == "" {
		writeError(w, http.StatusBadRequest, "uniqueUserId is required")
		return
	}
	plan, ok := subscription.ParsePlan(req.Plan)
	if !ok || !plan.Purchasable() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown plan %q", req.Plan))
		return
	}

	var session *billing.CheckoutSession
	var err error
	for attempt := 1; attempt <= h.checkoutAttempts; attempt++ {
		session, err = h.provider.CheckoutSession(r.Context(), req.UniqueUserID, plan)
		if err == nil || !errors.Is(err, billing.ErrUserNotFound) {
			break
		}
		if attempt == h.checkoutAttempts {
			break
		}
		h.logger.Debug("user record not ready, retrying checkout",
			subscription.Field{Key: "uid", Value: req.UniqueUserID},
			subscription.Field{Key: "attempt", Value: attempt})
		select {
		case <-r.Context().Done():
			writeError(w, http.StatusRequestTimeout, "request canceled")
			return
		case <-time.After(h.retryDelay):
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, billing.ErrPlanNotConfigured):
			writeError(w, http.StatusBadRequest, "plan not available")
		default:
			h.logger.Error("checkout session creation failed",
				subscription.Field{Key: "uid", Value: req.UniqueUserID},
				subscription.Field{Key: "error", Value: err.Error()})
			writeError(w, http.StatusInternalServerError, "failed to create checkout session")
		}
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{SessionID: session.ID, SessionURL: session.URL})
}

// PaymentSuccess handles GET /payment-success. It reconciles the checkout
// session eagerly instead of waiting for the webhook, then sends the user
// back to the extension with the outcome in the query string.
func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		h.redirectToExtension(w, r, "error")
		return
	}

	if err := h.provider.CompleteCheckout(r.Context(), sessionID); err != nil {
		h.logger.Error("payment completion failed",
			subscription.Field{Key: "session_id", Value: sessionID},
			subscription.Field{Key: "error", Value: err.Error()})
		h.redirectToExtension(w, r, "error")
		return
	}
	h.redirectToExtension(w, r, "success")
}

// CheckSubscription handles GET /check-subscription/{uniqueUserId}.
func (h *Handler) CheckSubscription(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uniqueUserId")

	result, err := h.service.GetStatus(r.Context(), uid)
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidUser) {
			writeError(w, http.StatusBadRequest, "uniqueUserId is required")
			return
		}
		h.logger.Error("subscription status check failed",
			subscription.Field{Key: "uid", Value: uid},
			subscription.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to check subscription")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CreatePortalSession handles POST /create-customer-portal-session.
func (h *Handler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UniqueUserID == "" {
		writeError(w, http.StatusBadRequest, "uniqueUserId is required")
		return
	}

	url, err := h.provider.PortalURL(r.Context(), req.UniqueUserID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrCustomerNotFound), errors.Is(err, billing.ErrUserNotFound):
			writeError(w, http.StatusBadRequest, "no billing customer found for user")
		default:
			h.logger.Error("portal session creation failed",
				subscription.Field{Key: "uid", Value: req.UniqueUserID},
				subscription.Field{Key: "error", Value: err.Error()})
			writeError(w, http.StatusInternalServerError, "failed to create portal session")
		}
		return
	}

	writeJSON(w, http.StatusOK, portalResponse{URL: url})
}

// SignIn handles POST /auth/sign-in.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "sign-in not configured")
		return
	}

	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IDToken == "" {
		writeError(w, http.StatusBadRequest, "idToken is required")
		return
	}

	user, created, err := h.resolver.SignIn(r.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, identity.ErrSignInFailed) {
			writeError(w, http.StatusUnauthorized, "invalid credential")
			return
		}
		h.logger.Error("sign-in failed",
			subscription.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	writeJSON(w, http.StatusOK, signInResponse{
		UniqueUserID: user.UID,
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		PhotoURL:     user.PhotoURL,
		Created:      created,
	})
}

func (h *Handler) redirectToExtension(w http.ResponseWriter, r *http.Request, outcome string) {
	http.Redirect(w, r, h.extensionURL+"?payment="+outcome, http.StatusFound)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
