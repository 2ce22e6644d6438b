package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mihaimyh/billingbridge/pkg/subscription"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *Store) *subscription.User {
	t.Helper()
	user := &subscription.User{
		UID:              "user-1",
		Subject:          "google-sub-1",
		Email:            "user@example.com",
		StripeCustomerID: "cus_1",
		CreatedAt:        testNow,
		LastLoginAt:      testNow,
		Subscription:     subscription.NewTrial(testNow),
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return user
}

func TestCreateAndGetUser(t *testing.T) {
	store := New()
	seed(t, store)

	got, err := store.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Subject != "google-sub-1" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.Subscription == nil || got.Subscription.Status != subscription.StatusTrial {
		t.Error("subscription not stored")
	}
}

func TestGetUserNotFound(t *testing.T) {
	store := New()
	_, err := store.GetUser(context.Background(), "ghost")
	if !errors.Is(err, subscription.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	store := New()
	seed(t, store)

	err := store.CreateUser(context.Background(), &subscription.User{UID: "user-1"})
	if err == nil {
		t.Error("duplicate uid accepted")
	}
}

func TestGetUserByCustomerID(t *testing.T) {
	store := New()
	seed(t, store)

	got, err := store.GetUserByCustomerID(context.Background(), "cus_1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.UID != "user-1" {
		t.Errorf("uid = %q", got.UID)
	}

	if _, err := store.GetUserByCustomerID(context.Background(), ""); !errors.Is(err, subscription.ErrUserNotFound) {
		t.Error("empty customer id must not match")
	}
}

func TestGetUserBySubject(t *testing.T) {
	store := New()
	seed(t, store)

	got, err := store.GetUserBySubject(context.Background(), "google-sub-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.UID != "user-1" {
		t.Errorf("uid = %q", got.UID)
	}

	if _, err := store.GetUserBySubject(context.Background(), "unknown"); !errors.Is(err, subscription.ErrUserNotFound) {
		t.Error("unknown subject must not match")
	}
}

func TestMergeSubscriptionReplacesWholesale(t *testing.T) {
	store := New()
	seed(t, store)

	canceledAt := testNow
	end := testNow.AddDate(0, 1, 0)
	err := store.MergeSubscription(context.Background(), "user-1", &subscription.Subscription{
		Status:     subscription.StatusActiveCanceling,
		Plan:       subscription.PlanMonthly,
		StartDate:  testNow,
		EndDate:    &end,
		CanceledAt: &canceledAt,
	})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	// A second write without canceledAt must clear it.
	err = store.MergeSubscription(context.Background(), "user-1", &subscription.Subscription{
		Status:    subscription.StatusActive,
		Plan:      subscription.PlanMonthly,
		StartDate: testNow,
		EndDate:   &end,
	})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	got, _ := store.GetUser(context.Background(), "user-1")
	if got.Subscription.CanceledAt != nil {
		t.Error("stale canceledAt survived a wholesale replace")
	}
}

func TestGetUserReturnsCopy(t *testing.T) {
	store := New()
	seed(t, store)

	got, _ := store.GetUser(context.Background(), "user-1")
	got.Subscription.Status = subscription.StatusExpired

	again, _ := store.GetUser(context.Background(), "user-1")
	if again.Subscription.Status != subscription.StatusTrial {
		t.Error("mutation through returned pointer leaked into the store")
	}
}

func TestSetCustomerAndUpdateLastLogin(t *testing.T) {
	store := New()
	seed(t, store)

	err := store.SetCustomer(context.Background(), "user-1", subscription.CustomerDetails{
		StripeCustomerID: "cus_new",
		StripeEmail:      "pay@example.com",
	})
	if err != nil {
		t.Fatalf("SetCustomer failed: %v", err)
	}

	at := testNow.Add(time.Hour)
	if err := store.UpdateLastLogin(context.Background(), "user-1", at); err != nil {
		t.Fatalf("UpdateLastLogin failed: %v", err)
	}

	got, _ := store.GetUser(context.Background(), "user-1")
	if got.StripeCustomerID != "cus_new" || got.StripeEmail != "pay@example.com" {
		t.Errorf("customer details not updated: %+v", got)
	}
	if !got.LastLoginAt.Equal(at) {
		t.Errorf("lastLoginAt = %v, want %v", got.LastLoginAt, at)
	}

	if err := store.UpdateLastLogin(context.Background(), "ghost", at); !errors.Is(err, subscription.ErrUserNotFound) {
		t.Error("UpdateLastLogin on missing user must fail")
	}
}
