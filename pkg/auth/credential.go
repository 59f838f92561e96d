package auth

import (
	"errors"
	"time"
)

// Common store errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Credential is a short-lived access token plus the refresh token used to
// renew it. Owned exclusively by the Broker; callers borrow a copy for the
// duration of one upstream call and never hold it beyond that.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RemainingLifetime returns how long the access token is still valid
func (c Credential) RemainingLifetime(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// ValidFor reports whether the access token will remain valid for at least
// the given safety margin
func (c Credential) ValidFor(margin time.Duration, now time.Time) bool {
	return c.AccessToken != "" && c.RemainingLifetime(now) >= margin
}
