package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInspector decodes bearer tokens and judges their freshness. It never
// verifies cryptographic signatures: no secret is available client-side. Any
// ambiguity is resolved toward "expired" so a bad claim can only log a user
// out, never keep them in.
type TokenInspector struct {
	parser *jwt.Parser
	skew   time.Duration
	clock  func() time.Time
}

// InspectorOption customizes a TokenInspector.
type InspectorOption func(*TokenInspector)

// WithInspectorSkew sets the clock-skew tolerance applied to expiry checks.
func WithInspectorSkew(skew time.Duration) InspectorOption {
	return func(ti *TokenInspector) {
		if skew >= 0 {
			ti.skew = skew
		}
	}
}

// WithInspectorClock injects a custom clock (useful for tests).
func WithInspectorClock(clock func() time.Time) InspectorOption {
	return func(ti *TokenInspector) {
		if clock != nil {
			ti.clock = clock
		}
	}
}

// NewTokenInspector returns an inspector with no skew tolerance by default.
func NewTokenInspector(opts ...InspectorOption) *TokenInspector {
	ti := &TokenInspector{
		parser: jwt.NewParser(),
		clock:  time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}

	return ti
}

// Inspect decodes the claims segment of a token without verifying its
// signature. A token is malformed if it does not split into three
// dot-separated segments or its claims segment lacks an expiry or role claim.
func (ti *TokenInspector) Inspect(token string) (*TokenClaims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrTokenMalformed
	}

	claims := &TokenClaims{}
	if _, _, err := ti.parser.ParseUnverified(token, claims); err != nil {
		clone := ErrTokenMalformed.Clone()
		clone.Source = err
		return nil, clone
	}

	if claims.RegisteredClaims.ExpiresAt == nil || claims.UserRole == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// IsExpired judges claim freshness against the inspector's clock and skew
// tolerance. A missing or zero expiry claim counts as expired.
func (ti *TokenInspector) IsExpired(claims *TokenClaims) bool {
	return ti.IsExpiredAt(claims, ti.clock())
}

// IsExpiredAt is IsExpired against an explicit instant.
func (ti *TokenInspector) IsExpiredAt(claims *TokenClaims, now time.Time) bool {
	if claims == nil {
		return true
	}

	exp := claims.Expires()
	if exp.IsZero() {
		return true
	}

	return !now.Before(exp.Add(ti.skew))
}
