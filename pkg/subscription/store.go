package subscription

import (
	"context"
	"time"
)

// Store defines the interface for user-record persistence.
// All methods use concrete types from this package to avoid import cycles.
type Store interface {
	// GetUser retrieves a user record by its application-level identifier.
	// Returns ErrUserNotFound when no record exists.
	GetUser(ctx context.Context, uid string) (*User, error)

	// GetUserByCustomerID performs a reverse lookup by the stored payment
	// customer reference. Returns ErrUserNotFound when no record matches.
	GetUserByCustomerID(ctx context.Context, customerID string) (*User, error)

	// GetUserBySubject looks a user up by the federated identity subject.
	// Returns ErrUserNotFound when no record matches.
	GetUserBySubject(ctx context.Context, subject string) (*User, error)

	// CreateUser inserts a new user record. UID must be set.
	CreateUser(ctx context.Context, user *User) error

	// UpdateLastLogin updates the last-login timestamp only.
	UpdateLastLogin(ctx context.Context, uid string, at time.Time) error

	// SetCustomer merge-upserts the payment customer fields onto the record
	// without disturbing any other field.
	SetCustomer(ctx context.Context, uid string, details CustomerDetails) error

	// MergeSubscription replaces the subscription sub-document wholesale.
	// This is the only subscription write primitive; replaying the same
	// write converges to the same state (last-write-wins).
	MergeSubscription(ctx context.Context, uid string, sub *Subscription) error
}
