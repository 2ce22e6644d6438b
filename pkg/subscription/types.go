package subscription

import (
	"strings"
	"time"
)

// Status is the reconciled subscription state stored per user.
type Status string

const (
	// StatusTrial is the 24h grant created at first sign-in.
	StatusTrial Status = "trial"
	// StatusActive is a paid subscription inside its current period.
	StatusActive Status = "active"
	// StatusActiveCanceling is a canceled subscription that stays usable
	// until the end of the already-paid period.
	StatusActiveCanceling Status = "active_canceling"
	// StatusExpired is a time-boxed subscription whose end date has passed.
	StatusExpired Status = "expired"
	// StatusNone is returned for unknown users or users without a subscription.
	StatusNone Status = "none"
)

// Plan identifies the purchased product.
type Plan string

const (
	PlanTrial    Plan = "trial"
	PlanMonthly  Plan = "monthly"
	PlanYearly   Plan = "yearly"
	PlanLifetime Plan = "lifetime"
)

// ParsePlan maps a raw plan name to a known Plan.
// Returns false for anything outside the purchasable set plus trial.
func ParsePlan(s string) (Plan, bool) {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanTrial:
		return PlanTrial, true
	case PlanMonthly:
		return PlanMonthly, true
	case PlanYearly:
		return PlanYearly, true
	case PlanLifetime:
		return PlanLifetime, true
	default:
		return "", false
	}
}

// Purchasable reports whether the plan can be bought through checkout.
func (p Plan) Purchasable() bool {
	return p == PlanMonthly || p == PlanYearly || p == PlanLifetime
}

// Recurring reports whether the plan is backed by a provider subscription
// object. Lifetime is a one-time payment and carries no subscription.
func (p Plan) Recurring() bool {
	return p == PlanMonthly || p == PlanYearly
}

// Subscription is the per-user subscription sub-document. It is always
// written wholesale (merge-overwrite of the full struct), never patched
// field by field.
type Subscription struct {
	Status               Status     `json:"status" firestore:"status"`
	Plan                 Plan       `json:"plan" firestore:"plan"`
	StartDate            time.Time  `json:"startDate" firestore:"startDate"`
	EndDate              *time.Time `json:"endDate" firestore:"endDate"`
	CanceledAt           *time.Time `json:"canceledAt" firestore:"canceledAt"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId,omitempty" firestore:"stripeSubscriptionId"`
}

// TrialDuration is the fixed trial window granted at first sign-in.
const TrialDuration = 24 * time.Hour

// NewTrial builds the subscription sub-document for a freshly provisioned user.
func NewTrial(now time.Time) *Subscription {
	end := now.Add(TrialDuration)
	return &Subscription{
		Status:    StatusTrial,
		Plan:      PlanTrial,
		StartDate: now,
		EndDate:   &end,
	}
}

// CustomerDetails are the payment-provider customer fields persisted on the
// user record once a checkout completes.
type CustomerDetails struct {
	StripeCustomerID           string
	StripeEmail                string
	StripeDefaultPaymentMethod string
}

// User is the persisted user record, keyed by UID. UID is the application
// level unique identifier and is distinct from the provider customer ID.
type User struct {
	UID         string `firestore:"uniqueUserId"`
	Subject     string `firestore:"subject"`
	DisplayName string `firestore:"displayName"`
	Email       string `firestore:"email"`
	PhotoURL    string `firestore:"photoUrl"`

	StripeCustomerID           string `firestore:"stripeCustomerId"`
	StripeEmail                string `firestore:"stripeEmail"`
	StripeDefaultPaymentMethod string `firestore:"stripeDefaultPaymentMethod"`

	CreatedAt   time.Time `firestore:"createdAt"`
	LastLoginAt time.Time `firestore:"lastLoginAt"`

	Subscription *Subscription `firestore:"subscription"`
}

// TimeSource returns the current time. Production code uses time.Now;
// tests substitute a fixed clock.
type TimeSource func() time.Time
