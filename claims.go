package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims this client reads out of an access token. The
// client holds no signing secret, so claims are decoded without signature
// verification and are used only for expiry judgement and hydration sanity
// checks, never as authorization-grade truth.
type TokenClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	UserRole string `json:"role,omitempty"`
}

// Subject returns the subject claim
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Role returns the raw role claim
func (c *TokenClaims) Role() string {
	return c.UserRole
}

// Expires returns the expiration time, zero when the claim is absent
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time, zero when the claim is absent
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
