package oauthmodel

// TokenPair is the access/refresh token pair issued by the authorization server.
// The pair is always stored and replaced as a unit: the server rotates the refresh token
// on every refresh grant, so keeping a new access token next to an old refresh token
// would leave the session with a credential that can no longer be used.
type TokenPair struct {
	// AccessToken is the short-lived bearer credential for the userinfo endpoint.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	// Usage: "Authorization: Bearer <access_token>"
	AccessToken string

	// RefreshToken is the long-lived credential used for the refresh_token grant.
	// Example: "3f0c6e5d2b..."
	// Behavior: Single use. The server invalidates it as soon as a new pair is issued.
	RefreshToken string
}

// Validate checks that both halves of the pair are present.
func (p TokenPair) Validate() error {
	if p.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if p.RefreshToken == "" {
		return ErrMissingRefreshToken
	}
	return nil
}
