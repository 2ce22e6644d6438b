package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

// Resolver turns verified credentials into user records.
type Resolver struct {
	store    subscription.Store
	verifier TokenVerifier
	logger   subscription.Logger
	now      subscription.TimeSource
	newUID   func() string
}

// NewResolver creates an identity resolver.
func NewResolver(store subscription.Store, verifier TokenVerifier, logger subscription.Logger) *Resolver {
	if logger == nil {
		logger = &subscription.NoopLogger{}
	}
	return &Resolver{
		store:    store,
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
		newUID:   uuid.NewString,
	}
}

// WithTimeSource overrides the clock. Intended for tests.
func (r *Resolver) WithTimeSource(ts subscription.TimeSource) *Resolver {
	r.now = ts
	return r
}

// SignIn verifies the credential and resolves it to a user record. A subject
// seen for the first time gets a freshly minted UID and a trial subscription;
// a returning subject only gets its login timestamp refreshed. The second
// return value reports whether the record was created by this call.
func (r *Resolver) SignIn(ctx context.Context, rawToken string) (*subscription.User, bool, error) {
	profile, err := r.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}

	now := r.now().UTC()

	user, err := r.store.GetUserBySubject(ctx, profile.Subject)
	switch {
	case err == nil:
		if err := r.store.UpdateLastLogin(ctx, user.UID, now); err != nil {
			r.logger.Warn("failed to update last login",
				subscription.Field{Key: "uid", Value: user.UID},
				subscription.Field{Key: "error", Value: err.Error()})
		}
		user.LastLoginAt = now
		return user, false, nil

	case errors.Is(err, subscription.ErrUserNotFound):
		user := &subscription.User{
			UID:          r.newUID(),
			Subject:      profile.Subject,
			DisplayName:  profile.DisplayName,
			Email:        profile.Email,
			PhotoURL:     profile.PhotoURL,
			CreatedAt:    now,
			LastLoginAt:  now,
			Subscription: subscription.NewTrial(now),
		}
		if err := r.store.CreateUser(ctx, user); err != nil {
			return nil, false, fmt.Errorf("failed to provision user: %w", err)
		}
		r.logger.Info("user provisioned with trial",
			subscription.Field{Key: "uid", Value: user.UID})
		return user, true, nil

	default:
		return nil, false, fmt.Errorf("subject lookup failed: %w", err)
	}
}
