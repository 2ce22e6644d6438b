package identity

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

// GoogleVerifier validates Google ID tokens against a fixed OAuth client ID.
type GoogleVerifier struct {
	audience string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier creates a verifier for tokens issued to the given OAuth
// client ID.
func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	return &GoogleVerifier{
		audience: clientID,
		validate: idtoken.Validate,
	}, nil
}

// Verify implements TokenVerifier.
func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (*Profile, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("empty token")
	}

	payload, err := v.validate(ctx, rawToken, v.audience)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("token carries no subject")
	}

	profile := &Profile{Subject: payload.Subject}
	if s, ok := payload.Claims["name"].(string); ok {
		profile.DisplayName = s
	}
	if s, ok := payload.Claims["email"].(string); ok {
		profile.Email = s
	}
	if s, ok := payload.Claims["picture"].(string); ok {
		profile.PhotoURL = s
	}
	return profile, nil
}
