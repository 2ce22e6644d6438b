package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

func validConfig() *Config {
	return &Config{
		StoreBackend:        BackendMemory,
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: "whsec_123",
		ExtensionURL:        "https://extension.example.com",
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateMissingStripeKey(t *testing.T) {
	cfg := validConfig()
	cfg.StripeSecretKey = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.StripeWebhookSecret = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.ExtensionURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateBackendRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.StoreBackend = BackendFirestore
	assert.Error(t, cfg.Validate(), "firestore backend requires a project ID")
	cfg.FirestoreProjectID = "proj-1"
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.StoreBackend = BackendPostgres
	assert.Error(t, cfg.Validate(), "postgres backend requires a connection URL")
	cfg.PostgresURL = "postgres://localhost/billing"
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.StoreBackend = "dynamo"
	assert.Error(t, cfg.Validate(), "unknown backends must be rejected")
}

func TestPlanPricesSkipsUnsetPlans(t *testing.T) {
	cfg := validConfig()
	cfg.StripePriceMonthly = "price_m"
	cfg.StripePriceLifetime = "price_l"

	prices := cfg.PlanPrices()
	assert.Equal(t, "price_m", prices[subscription.PlanMonthly])
	assert.Equal(t, "price_l", prices[subscription.PlanLifetime])
	assert.NotContains(t, prices, subscription.PlanYearly)
}
