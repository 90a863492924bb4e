package models

import (
	"strings"
	"time"
)

// Credential is one provider credential set. Merchants onboarded with their
// own Bead account get a row in merchant_credentials; everyone else falls
// back to the shared set from process configuration.
type Credential struct {
	MerchantID  string
	TerminalID  string
	Username    string
	Secret      string
	APIBaseURL  string
	AuthBaseURL string
	Disabled    bool
}

// CacheKey identifies the credential for token caching. Tokens must never be
// shared across credential sets, so the key covers everything that selects
// the authenticated session.
func (c Credential) CacheKey() string {
	return c.AuthBaseURL + "|" + c.TerminalID + "|" + c.Username
}

// MissingFields reports which required fields are absent. An empty result
// means the credential set is usable.
func (c Credential) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(c.AuthBaseURL) == "" {
		missing = append(missing, "auth url")
	}
	if strings.TrimSpace(c.TerminalID) == "" {
		missing = append(missing, "terminal id")
	}
	if strings.TrimSpace(c.Secret) == "" {
		missing = append(missing, "secret")
	}
	return missing
}

// AccessToken is an ephemeral provider session token. It lives only in the
// token store, keyed by Credential.CacheKey.
type AccessToken struct {
	Value      string
	ObtainedAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the token can no longer be presented. A zero
// ExpiresAt means the provider did not announce a lifetime; the token store
// substitutes its own conservative TTL before a token ever gets here.
func (t AccessToken) Expired(now time.Time) bool {
	if t.Value == "" {
		return true
	}
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}
