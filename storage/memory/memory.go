// Package memory provides an in-memory implementation of the
// subscription.Store interface. This implementation is primarily intended
// for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

// Store implements subscription.Store using in-memory maps.
type Store struct {
	mu    sync.RWMutex
	users map[string]*subscription.User
}

// New creates a new in-memory store adapter.
func New() *Store {
	return &Store{
		users: make(map[string]*subscription.User),
	}
}

// GetUser implements subscription.Store.
func (s *Store) GetUser(ctx context.Context, uid string) (*subscription.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[uid]
	if !ok {
		return nil, subscription.ErrUserNotFound
	}
	return copyUser(user), nil
}

// GetUserByCustomerID implements subscription.Store.
func (s *Store) GetUserByCustomerID(ctx context.Context, customerID string) (*subscription.User, error) {
	if customerID == "" {
		return nil, subscription.ErrUserNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.StripeCustomerID == customerID {
			return copyUser(user), nil
		}
	}
	return nil, subscription.ErrUserNotFound
}

// GetUserBySubject implements subscription.Store.
func (s *Store) GetUserBySubject(ctx context.Context, subject string) (*subscription.User, error) {
	if subject == "" {
		return nil, subscription.ErrUserNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Subject == subject {
			return copyUser(user), nil
		}
	}
	return nil, subscription.ErrUserNotFound
}

// CreateUser implements subscription.Store.
func (s *Store) CreateUser(ctx context.Context, user *subscription.User) error {
	if user == nil || user.UID == "" {
		return fmt.Errorf("%w: missing uid", subscription.ErrInvalidUser)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.UID]; exists {
		return fmt.Errorf("%w: duplicate uid %s", subscription.ErrInvalidUser, user.UID)
	}
	s.users[user.UID] = copyUser(user)
	return nil
}

// UpdateLastLogin implements subscription.Store.
func (s *Store) UpdateLastLogin(ctx context.Context, uid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[uid]
	if !ok {
		return subscription.ErrUserNotFound
	}
	user.LastLoginAt = at
	return nil
}

// SetCustomer implements subscription.Store.
func (s *Store) SetCustomer(ctx context.Context, uid string, details subscription.CustomerDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[uid]
	if !ok {
		return subscription.ErrUserNotFound
	}
	user.StripeCustomerID = details.StripeCustomerID
	user.StripeEmail = details.StripeEmail
	user.StripeDefaultPaymentMethod = details.StripeDefaultPaymentMethod
	return nil
}

// MergeSubscription implements subscription.Store. The sub-document is
// replaced wholesale; concurrent writers race with last-write-wins
// semantics, matching the document-store backends.
func (s *Store) MergeSubscription(ctx context.Context, uid string, sub *subscription.Subscription) error {
	if sub == nil {
		return subscription.ErrInvalidSubscription
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[uid]
	if !ok {
		return subscription.ErrUserNotFound
	}
	subCopy := *sub
	user.Subscription = &subCopy
	return nil
}

// copyUser returns a deep copy to prevent external mutations.
func copyUser(user *subscription.User) *subscription.User {
	userCopy := *user
	if user.Subscription != nil {
		subCopy := *user.Subscription
		userCopy.Subscription = &subCopy
	}
	return &userCopy
}
