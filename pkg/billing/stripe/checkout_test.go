package stripe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mihaimyh/billingbridge/pkg/billing"
	"github.com/mihaimyh/billingbridge/pkg/subscription"
	"github.com/mihaimyh/billingbridge/storage/memory"
)

func TestCheckoutSessionRecurringPlan(t *testing.T) {
	store := memory.New()
	seedUser(t, store, subscription.NewTrial(testNow.Add(-time.Hour)), "")
	provider, fb := newTestProvider(t, store)

	session, err := provider.CheckoutSession(context.Background(), testUserID, subscription.PlanMonthly)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if session.ID == "" || session.URL == "" {
		t.Errorf("incomplete session: %+v", session)
	}

	if len(fb.createdSessions) != 1 {
		t.Fatalf("created %d sessions, want 1", len(fb.createdSessions))
	}
	params := fb.createdSessions[0]
	if params.Mode == nil || *params.Mode != "subscription" {
		t.Errorf("mode = %v, want subscription", params.Mode)
	}
	if params.ClientReferenceID == nil || *params.ClientReferenceID != testUserID {
		t.Errorf("clientReferenceID = %v, want %s", params.ClientReferenceID, testUserID)
	}
	if params.Metadata[metadataUserIDKey] != testUserID {
		t.Errorf("metadata user id = %q, want %q", params.Metadata[metadataUserIDKey], testUserID)
	}
	if params.Metadata[metadataPlanKey] != "monthly" {
		t.Errorf("metadata plan = %q, want monthly", params.Metadata[metadataPlanKey])
	}
}

func TestCheckoutSessionLifetimeUsesPaymentMode(t *testing.T) {
	store := memory.New()
	seedUser(t, store, subscription.NewTrial(testNow.Add(-time.Hour)), "")
	provider, fb := newTestProvider(t, store)

	if _, err := provider.CheckoutSession(context.Background(), testUserID, subscription.PlanLifetime); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	params := fb.createdSessions[0]
	if params.Mode == nil || *params.Mode != "payment" {
		t.Errorf("mode = %v, want payment", params.Mode)
	}
}

func TestCheckoutSessionReusesExistingCustomer(t *testing.T) {
	store := memory.New()
	seedUser(t, store, subscription.NewTrial(testNow.Add(-time.Hour)), testCustomerID)
	provider, fb := newTestProvider(t, store)

	if _, err := provider.CheckoutSession(context.Background(), testUserID, subscription.PlanYearly); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	params := fb.createdSessions[0]
	if params.Customer == nil || *params.Customer != testCustomerID {
		t.Errorf("customer = %v, want %s", params.Customer, testCustomerID)
	}
}

func TestCheckoutSessionRejectsNonPurchasablePlan(t *testing.T) {
	provider, _ := newTestProvider(t, memory.New())

	_, err := provider.CheckoutSession(context.Background(), testUserID, subscription.PlanTrial)
	if !errors.Is(err, billing.ErrPlanNotConfigured) {
		t.Errorf("err = %v, want ErrPlanNotConfigured", err)
	}
}

func TestCheckoutSessionUnknownUser(t *testing.T) {
	provider, _ := newTestProvider(t, memory.New())

	_, err := provider.CheckoutSession(context.Background(), "ghost", subscription.PlanMonthly)
	if !errors.Is(err, billing.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestPortalURLRequiresCustomer(t *testing.T) {
	store := memory.New()
	seedUser(t, store, subscription.NewTrial(testNow.Add(-time.Hour)), "")
	provider, _ := newTestProvider(t, store)

	_, err := provider.PortalURL(context.Background(), testUserID)
	if !errors.Is(err, billing.ErrCustomerNotFound) {
		t.Errorf("err = %v, want ErrCustomerNotFound", err)
	}
}

func TestPortalURL(t *testing.T) {
	store := memory.New()
	seedUser(t, store, subscription.NewTrial(testNow.Add(-time.Hour)), testCustomerID)
	provider, _ := newTestProvider(t, store)

	url, err := provider.PortalURL(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("portal failed: %v", err)
	}
	if url == "" {
		t.Error("empty portal URL")
	}
}
