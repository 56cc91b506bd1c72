package oauthmodel

import "strings"

// Identity is the userinfo response for the current access token.
// It is returned to the frontend as-is and never persisted.
type Identity struct {
	// Subject is the user identifier at the authorization server.
	// Example: "user-123"
	Subject string `json:"sub"`

	// ClientID is the client the access token was issued to.
	// Example: "example-client"
	ClientID string `json:"client_id"`

	// Scope is the space-delimited scope granted to the token.
	// Example: "openid profile"
	Scope string `json:"scope"`
}

// Scopes splits Scope on whitespace.
func (i Identity) Scopes() []string {
	return strings.Fields(i.Scope)
}

// HasScope reports whether scope was granted.
func (i Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}
