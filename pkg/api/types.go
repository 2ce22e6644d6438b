package api

// checkoutRequest is the body of POST /create-checkout-session.
type checkoutRequest struct {
	UniqueUserID string `json:"uniqueUserId"`
	Plan         string `json:"plan"`
}

// checkoutResponse mirrors what the extension expects back.
type checkoutResponse struct {
	SessionID  string `json:"sessionId"`
	SessionURL string `json:"sessionUrl"`
}

// portalRequest is the body of POST /create-customer-portal-session.
type portalRequest struct {
	UniqueUserID string `json:"uniqueUserId"`
}

type portalResponse struct {
	URL string `json:"url"`
}

// signInRequest is the body of POST /auth/sign-in.
type signInRequest struct {
	IDToken string `json:"idToken"`
}

type signInResponse struct {
	UniqueUserID string `json:"uniqueUserId"`
	DisplayName  string `json:"displayName,omitempty"`
	Email        string `json:"email,omitempty"`
	PhotoURL     string `json:"photoUrl,omitempty"`
	Created      bool   `json:"created"`
}

type errorResponse struct {
	Error string `json:"error"`
}
