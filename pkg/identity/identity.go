// Package identity resolves federated sign-in credentials to durable user
// records. The first successful sign-in provisions the record together with
// its trial subscription; later sign-ins only refresh the login timestamp.
package identity

import (
	"context"
	"errors"
)

// Profile is the verified identity carried by a federated credential.
type Profile struct {
	// Subject is the stable identifier assigned by the identity provider.
	Subject string

	DisplayName string
	Email       string
	PhotoURL    string
}

// TokenVerifier validates a raw federated credential and extracts the
// profile. Implementations must reject expired, malformed, or mis-audienced
// tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Profile, error)
}

// ErrSignInFailed is returned when the credential cannot be verified.
var ErrSignInFailed = errors.New("sign-in failed")
