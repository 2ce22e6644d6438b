// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

// Store backend names accepted by STORE_BACKEND.
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

// Config is the full service configuration.
type Config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// StoreBackend selects the user-record store: firestore, postgres or
	// memory.
	StoreBackend string `envconfig:"STORE_BACKEND" default:"firestore"`

	FirestoreProjectID       string `envconfig:"FIRESTORE_PROJECT_ID"`
	FirestoreUsersCollection string `envconfig:"FIRESTORE_USERS_COLLECTION" default:"users"`

	PostgresURL string `envconfig:"POSTGRES_URL"`

	// Redis backs the webhook dedup guard when set; otherwise an
	// in-memory guard is used.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripePriceMonthly  string `envconfig:"STRIPE_PRICE_MONTHLY"`
	StripePriceYearly   string `envconfig:"STRIPE_PRICE_YEARLY"`
	StripePriceLifetime string `envconfig:"STRIPE_PRICE_LIFETIME"`

	// WebhookRateLimit caps webhook requests per IP per minute. Zero
	// disables rate limiting.
	WebhookRateLimit int `envconfig:"WEBHOOK_RATE_LIMIT" default:"120"`

	// GoogleClientID enables the sign-in endpoint when set.
	GoogleClientID string `envconfig:"GOOGLE_CLIENT_ID"`

	// ServerURL is the public base URL of this service, used to build the
	// checkout success URL.
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8080"`

	// ExtensionURL is where checkout cancel and the payment return trip
	// redirect to.
	ExtensionURL string `envconfig:"EXTENSION_URL"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.ExtensionURL == "" {
		return fmt.Errorf("EXTENSION_URL is required")
	}
	return nil
}

// PlanPrices builds the plan-to-price table from the configured price IDs.
// Unset prices leave the plan unavailable for purchase.
func (c *Config) PlanPrices() map[subscription.Plan]string {
	prices := make(map[subscription.Plan]string)
	if c.StripePriceMonthly != "" {
		prices[subscription.PlanMonthly] = c.StripePriceMonthly
	}
	if c.StripePriceYearly != "" {
		prices[subscription.PlanYearly] = c.StripePriceYearly
	}
	if c.StripePriceLifetime != "" {
		prices[subscription.PlanLifetime] = c.StripePriceLifetime
	}
	return prices
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
