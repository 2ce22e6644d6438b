package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrPlanNotConfigured is returned when a plan has no provider price mapping
	ErrPlanNotConfigured = errors.New("plan not configured in price mapping")

	// ErrUserNotFound is returned when the user record for an operation is absent
	ErrUserNotFound = errors.New("user not found")

	// ErrCustomerNotFound is returned when a user has no payment customer reference
	ErrCustomerNotFound = errors.New("customer not found for user")

	// ErrCorrelationFailed is returned when a provider object cannot be mapped
	// back to a user. Events failing correlation are dropped without mutation.
	ErrCorrelationFailed = errors.New("no user correlation on provider object")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")
)
