// Package postgres provides a PostgreSQL implementation of the
// subscription.Store interface. User records live in a single table with the
// subscription state held in a JSONB column that is always replaced
// wholesale, mirroring the document-store write contract.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    uid           TEXT PRIMARY KEY,
//	    subject       TEXT NOT NULL DEFAULT '',
//	    display_name  TEXT NOT NULL DEFAULT '',
//	    email         TEXT NOT NULL DEFAULT '',
//	    photo_url     TEXT NOT NULL DEFAULT '',
//	    stripe_customer_id             TEXT NOT NULL DEFAULT '',
//	    stripe_email                   TEXT NOT NULL DEFAULT '',
//	    stripe_default_payment_method  TEXT NOT NULL DEFAULT '',
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    last_login_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    subscription  JSONB
//	);
//	CREATE INDEX users_stripe_customer_id_idx ON users (stripe_customer_id);
//	CREATE INDEX users_subject_idx ON users (subject);
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

// Store implements subscription.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// Pool configuration.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store adapter.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// GetUser implements subscription.Store.
func (s *Store) GetUser(ctx context.Context, uid string) (*subscription.User, error) {
	return s.queryUser(ctx,
		`SELECT uid, subject, display_name, email, photo_url,
			stripe_customer_id, stripe_email, stripe_default_payment_method,
			created_at, last_login_at, subscription
		FROM users WHERE uid = $1`, uid)
}

// GetUserByCustomerID implements subscription.Store.
func (s *Store) GetUserByCustomerID(ctx context.Context, customerID string) (*subscription.User, error) {
	if customerID == "" {
		return nil, subscription.ErrUserNotFound
	}
	return s.queryUser(ctx,
		`SELECT uid, subject, display_name, email, photo_url,
			stripe_customer_id, stripe_email, stripe_default_payment_method,
			created_at, last_login_at, subscription
		FROM users WHERE stripe_customer_id = $1 LIMIT 1`, customerID)
}

// GetUserBySubject implements subscription.Store.
func (s *Store) GetUserBySubject(ctx context.Context, subject string) (*subscription.User, error) {
	if subject == "" {
		return nil, subscription.ErrUserNotFound
	}
	return s.queryUser(ctx,
		`SELECT uid, subject, display_name, email, photo_url,
			stripe_customer_id, stripe_email, stripe_default_payment_method,
			created_at, last_login_at, subscription
		FROM users WHERE subject = $1 LIMIT 1`, subject)
}

// CreateUser implements subscription.Store.
func (s *Store) CreateUser(ctx context.Context, user *subscription.User) error {
	if user == nil || user.UID == "" {
		return fmt.Errorf("%w: missing uid", subscription.ErrInvalidUser)
	}

	var subJSON []byte
	if user.Subscription != nil {
		var err error
		subJSON, err = json.Marshal(user.Subscription)
		if err != nil {
			return fmt.Errorf("failed to encode subscription: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (uid, subject, display_name, email, photo_url, created_at, last_login_at, subscription)
			VALUES ($1, $2, $3, $4, $5, now(), now(), $6)`,
		user.UID, user.Subject, user.DisplayName, user.Email, user.PhotoURL, subJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateLastLogin implements subscription.Store.
func (s *Store) UpdateLastLogin(ctx context.Context, uid string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_login_at = $2 WHERE uid = $1`, uid, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrUserNotFound
	}
	return nil
}

// SetCustomer implements subscription.Store.
func (s *Store) SetCustomer(ctx context.Context, uid string, details subscription.CustomerDetails) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET
			stripe_customer_id = $2,
			stripe_email = $3,
			stripe_default_payment_method = $4
		WHERE uid = $1`,
		uid, details.StripeCustomerID, details.StripeEmail, details.StripeDefaultPaymentMethod,
	)
	if err != nil {
		return fmt.Errorf("failed to set customer details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrUserNotFound
	}
	return nil
}

// MergeSubscription implements subscription.Store. The JSONB column is
// replaced as a whole; last-write-wins across concurrent writers.
func (s *Store) MergeSubscription(ctx context.Context, uid string, sub *subscription.Subscription) error {
	if sub == nil {
		return subscription.ErrInvalidSubscription
	}

	subJSON, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET subscription = $2 WHERE uid = $1`, uid, subJSON)
	if err != nil {
		return fmt.Errorf("failed to merge subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrUserNotFound
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) queryUser(ctx context.Context, query string, arg any) (*subscription.User, error) {
	var user subscription.User
	var subJSON []byte

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.UID,
		&user.Subject,
		&user.DisplayName,
		&user.Email,
		&user.PhotoURL,
		&user.StripeCustomerID,
		&user.StripeEmail,
		&user.StripeDefaultPaymentMethod,
		&user.CreatedAt,
		&user.LastLoginAt,
		&subJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, subscription.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if len(subJSON) > 0 {
		var sub subscription.Subscription
		if err := json.Unmarshal(subJSON, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		user.Subscription = &sub
	}

	return &user, nil
}
