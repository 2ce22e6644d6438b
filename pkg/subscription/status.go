package subscription

import (
	"context"
	"fmt"
	"time"
)

// StatusResult is the answer to "what is this user's subscription state".
type StatusResult struct {
	Status  Status     `json:"status"`
	Plan    Plan       `json:"plan,omitempty"`
	EndDate *time.Time `json:"endDate,omitempty"`
}

// Service answers subscription status queries against the Store, performing
// the lazy active_canceling -> expired transition on read. Expiry is detected
// here rather than by a background sweeper, so every read path must go
// through GetStatus.
type Service struct {
	store  Store
	logger Logger
	now    TimeSource
}

// NewService creates a status query service. logger may be nil.
func NewService(store Store, logger Logger) *Service {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithTimeSource overrides the clock. Intended for tests.
func (s *Service) WithTimeSource(now TimeSource) *Service {
	s.now = now
	return s
}

// GetStatus returns the current subscription state for the given user.
//
// Missing user or missing subscription sub-document yields StatusNone.
// Lifetime plans are always active regardless of any stored end date.
// An active_canceling subscription whose end date has passed is rewritten
// to expired in the store before being returned, so subsequent reads do
// not recompute the transition.
func (s *Service) GetStatus(ctx context.Context, uid string) (*StatusResult, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: empty uid", ErrInvalidUser)
	}

	user, err := s.store.GetUser(ctx, uid)
	if err != nil {
		if err == ErrUserNotFound {
			return &StatusResult{Status: StatusNone}, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	sub := user.Subscription
	if sub == nil {
		return &StatusResult{Status: StatusNone}, nil
	}

	if sub.Plan == PlanLifetime {
		// Lifetime purchases never expire; short-circuit any time check.
		return &StatusResult{Status: StatusActive, Plan: PlanLifetime}, nil
	}

	now := s.now().UTC()
	if sub.Status == StatusActiveCanceling && sub.EndDate != nil && now.After(*sub.EndDate) {
		expired := &Subscription{
			Status:               StatusExpired,
			Plan:                 sub.Plan,
			StartDate:            sub.StartDate,
			EndDate:              sub.EndDate,
			CanceledAt:           sub.CanceledAt,
			StripeSubscriptionID: sub.StripeSubscriptionID,
		}
		if err := s.store.MergeSubscription(ctx, uid, expired); err != nil {
			return nil, fmt.Errorf("failed to persist expiry: %w", err)
		}
		s.logger.Info("subscription expired on read",
			Field{Key: "uid", Value: uid},
			Field{Key: "plan", Value: string(sub.Plan)})
		return &StatusResult{Status: StatusExpired, Plan: sub.Plan, EndDate: sub.EndDate}, nil
	}

	return &StatusResult{Status: sub.Status, Plan: sub.Plan, EndDate: sub.EndDate}, nil
}
