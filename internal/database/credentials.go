package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// CredentialKind discriminates the credential bundle variants
type CredentialKind string

const (
	CredentialKindOAuth    CredentialKind = "oauth"
	CredentialKindAPIToken CredentialKind = "api_token"
)

// OAuthBundle holds OAuth access/refresh credentials for a provider
type OAuthBundle struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// APITokenBundle holds a long-lived static API token
type APITokenBundle struct {
	Token string `json:"token"`
}

// Credentials is the tagged credential union stored on a tenant integration.
// Exactly one of OAuth or APIToken is set, selected by Kind. Extras carries
// provider-specific settings (chat channel ids, tracker base URL, email).
type Credentials struct {
	Kind     CredentialKind    `json:"kind"`
	OAuth    *OAuthBundle      `json:"oauth,omitempty"`
	APIToken *APITokenBundle   `json:"api_token,omitempty"`
	Extras   map[string]string `json:"extras,omitempty"`
}

// Scan implements the sql.Scanner interface
func (c *Credentials) Scan(value interface{}) error {
	if value == nil {
		*c = Credentials{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, c)
}

// Value implements the driver.Valuer interface
func (c Credentials) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Token returns the bearer token for the active variant, or "" if unset
func (c Credentials) Token() string {
	switch c.Kind {
	case CredentialKindOAuth:
		if c.OAuth != nil {
			return c.OAuth.AccessToken
		}
	case CredentialKindAPIToken:
		if c.APIToken != nil {
			return c.APIToken.Token
		}
	}
	return ""
}

// ExpiresWithin reports whether an OAuth bundle expires inside the buffer.
// Static API tokens and bundles without a recorded expiry never expire here;
// the token store probes the provider instead when it suspects staleness.
func (c Credentials) ExpiresWithin(buffer time.Duration) bool {
	if c.Kind != CredentialKindOAuth || c.OAuth == nil || c.OAuth.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(buffer).After(*c.OAuth.ExpiresAt)
}

// Extra returns a provider-specific extra value, or "" if absent
func (c Credentials) Extra(key string) string {
	if c.Extras == nil {
		return ""
	}
	return c.Extras[key]
}
