package subscription

import "errors"

var (
	// ErrUserNotFound is returned when no record exists for the given identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUser is returned when a record is missing required fields.
	ErrInvalidUser = errors.New("invalid user record")

	// ErrInvalidSubscription is returned when a subscription write is malformed.
	ErrInvalidSubscription = errors.New("invalid subscription state")
)
