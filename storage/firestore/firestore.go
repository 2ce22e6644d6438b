// Package firestore provides a Firestore implementation of the
// subscription.Store interface. This is the production backend: one document
// per user in a single collection, with the subscription state held in a
// nested sub-document that is always replaced wholesale.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

const defaultUsersCollection = "users"

// Store implements subscription.Store using Google Cloud Firestore.
type Store struct {
	client          *firestore.Client
	usersCollection string
}

// Config holds Firestore store configuration.
type Config struct {
	// UsersCollection is the Firestore collection for user records.
	// Default: "users"
	UsersCollection string
}

// New creates a new Firestore store adapter.
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.UsersCollection == "" {
		config.UsersCollection = defaultUsersCollection
	}

	return &Store{
		client:          client,
		usersCollection: config.UsersCollection,
	}, nil
}

// GetUser implements subscription.Store.
func (s *Store) GetUser(ctx context.Context, uid string) (*subscription.User, error) {
	snap, err := s.client.Collection(s.usersCollection).Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, subscription.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !snap.Exists() {
		return nil, subscription.ErrUserNotFound
	}

	return decodeUser(snap)
}

// GetUserByCustomerID implements subscription.Store. Reverse lookup by the
// stored payment customer reference, used when a provider object carries no
// correlation metadata.
func (s *Store) GetUserByCustomerID(ctx context.Context, customerID string) (*subscription.User, error) {
	if customerID == "" {
		return nil, subscription.ErrUserNotFound
	}

	iter := s.client.Collection(s.usersCollection).
		Where("stripeCustomerId", "==", customerID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, subscription.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by customer: %w", err)
	}

	return decodeUser(snap)
}

// GetUserBySubject implements subscription.Store.
func (s *Store) GetUserBySubject(ctx context.Context, subject string) (*subscription.User, error) {
	if subject == "" {
		return nil, subscription.ErrUserNotFound
	}

	iter := s.client.Collection(s.usersCollection).
		Where("subject", "==", subject).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, subscription.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by subject: %w", err)
	}

	return decodeUser(snap)
}

// CreateUser implements subscription.Store.
func (s *Store) CreateUser(ctx context.Context, user *subscription.User) error {
	if user == nil || user.UID == "" {
		return fmt.Errorf("%w: missing uid", subscription.ErrInvalidUser)
	}

	data := map[string]interface{}{
		"uniqueUserId": user.UID,
		"subject":      user.Subject,
		"displayName":  user.DisplayName,
		"email":        user.Email,
		"photoUrl":     user.PhotoURL,
		"createdAt":    firestore.ServerTimestamp,
		"lastLoginAt":  firestore.ServerTimestamp,
	}
	if user.Subscription != nil {
		data["subscription"] = subscriptionData(user.Subscription)
	}

	if _, err := s.client.Collection(s.usersCollection).Doc(user.UID).Create(ctx, data); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateLastLogin implements subscription.Store.
func (s *Store) UpdateLastLogin(ctx context.Context, uid string, at time.Time) error {
	_, err := s.client.Collection(s.usersCollection).Doc(uid).Update(ctx, []firestore.Update{
		{Path: "lastLoginAt", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return subscription.ErrUserNotFound
		}
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// SetCustomer implements subscription.Store.
func (s *Store) SetCustomer(ctx context.Context, uid string, details subscription.CustomerDetails) error {
	data := map[string]interface{}{
		"stripeCustomerId":           details.StripeCustomerID,
		"stripeEmail":                details.StripeEmail,
		"stripeDefaultPaymentMethod": details.StripeDefaultPaymentMethod,
	}

	_, err := s.client.Collection(s.usersCollection).Doc(uid).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to set customer details: %w", err)
	}
	return nil
}

// MergeSubscription implements subscription.Store. The merge is scoped to the
// subscription field path so the sub-document is replaced as a whole (stale
// fields like canceledAt cannot survive a rewrite) while the rest of the user
// record is untouched. Concurrent writers race with last-write-wins.
func (s *Store) MergeSubscription(ctx context.Context, uid string, sub *subscription.Subscription) error {
	if sub == nil {
		return subscription.ErrInvalidSubscription
	}

	data := map[string]interface{}{
		"subscription": subscriptionData(sub),
	}

	_, err := s.client.Collection(s.usersCollection).Doc(uid).
		Set(ctx, data, firestore.Merge(firestore.FieldPath{"subscription"}))
	if err != nil {
		return fmt.Errorf("failed to merge subscription: %w", err)
	}
	return nil
}

func subscriptionData(sub *subscription.Subscription) map[string]interface{} {
	data := map[string]interface{}{
		"status":    string(sub.Status),
		"plan":      string(sub.Plan),
		"startDate": sub.StartDate,
		"endDate":   nil,
	}
	if sub.EndDate != nil {
		data["endDate"] = *sub.EndDate
	}
	if sub.CanceledAt != nil {
		data["canceledAt"] = *sub.CanceledAt
	} else {
		data["canceledAt"] = nil
	}
	if sub.StripeSubscriptionID != "" {
		data["stripeSubscriptionId"] = sub.StripeSubscriptionID
	}
	return data
}

func decodeUser(snap *firestore.DocumentSnapshot) (*subscription.User, error) {
	var user subscription.User
	if err := snap.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", snap.Ref.ID, err)
	}
	if user.UID == "" {
		user.UID = snap.Ref.ID
	}
	return &user, nil
}
