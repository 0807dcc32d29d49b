package session_test

import (
	"testing"
	"time"

	session "github.com/rentora/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenInspectorInspect(t *testing.T) {
	inspector := session.NewTokenInspector()

	t.Run("decodes a structurally valid token", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		raw := forgeToken(t, "usr-42", session.RoleCustomer, exp)

		claims, err := inspector.Inspect(raw)
		require.NoError(t, err)
		require.NotNil(t, claims)

		assert.Equal(t, "usr-42", claims.Subject())
		assert.Equal(t, "customer", claims.Role())
		assert.Equal(t, exp.Unix(), claims.Expires().Unix())
	})

	t.Run("rejects empty string", func(t *testing.T) {
		_, err := inspector.Inspect("")
		require.Error(t, err)
		assert.True(t, session.IsMalformedError(err))
	})

	t.Run("rejects token with wrong segment count", func(t *testing.T) {
		for _, raw := range []string{"onlyone", "two.segments", "a.b.c.d"} {
			_, err := inspector.Inspect(raw)
			require.Error(t, err, raw)
			assert.True(t, session.IsMalformedError(err), raw)
		}
	})

	t.Run("rejects undecodable claims segment", func(t *testing.T) {
		_, err := inspector.Inspect("aGVhZGVy.%%%notbase64%%%.c2ln")
		require.Error(t, err)
		assert.True(t, session.IsMalformedError(err))
	})

	t.Run("rejects token without expiry claim", func(t *testing.T) {
		// header {"alg":"HS256"} and claims {"sub":"u","role":"customer"}
		raw := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1Iiwicm9sZSI6ImN1c3RvbWVyIn0.c2ln"
		_, err := inspector.Inspect(raw)
		require.Error(t, err)
		assert.True(t, session.IsMalformedError(err))
	})

	t.Run("rejects token without role claim", func(t *testing.T) {
		// claims {"sub":"u","exp":4102444800}
		raw := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1IiwiZXhwIjo0MTAyNDQ0ODAwfQ.c2ln"
		_, err := inspector.Inspect(raw)
		require.Error(t, err)
		assert.True(t, session.IsMalformedError(err))
	})
}

func TestTokenInspectorExpiry(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	inspector := session.NewTokenInspector(session.WithInspectorClock(func() time.Time { return now }))

	t.Run("nil claims count as expired", func(t *testing.T) {
		assert.True(t, inspector.IsExpired(nil))
	})

	t.Run("future expiry is fresh", func(t *testing.T) {
		raw := forgeToken(t, "u", session.RoleCustomer, now.Add(time.Hour))
		claims, err := inspector.Inspect(raw)
		require.NoError(t, err)
		assert.False(t, inspector.IsExpired(claims))
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		raw := forgeToken(t, "u", session.RoleCustomer, now.Add(-10*time.Minute))
		claims, err := inspector.Inspect(raw)
		require.NoError(t, err)
		assert.True(t, inspector.IsExpired(claims))
	})

	t.Run("expiry boundary counts as expired", func(t *testing.T) {
		raw := forgeToken(t, "u", session.RoleCustomer, now)
		claims, err := inspector.Inspect(raw)
		require.NoError(t, err)
		assert.True(t, inspector.IsExpired(claims))
	})

	t.Run("skew tolerance keeps a just-expired token alive", func(t *testing.T) {
		tolerant := session.NewTokenInspector(
			session.WithInspectorClock(func() time.Time { return now }),
			session.WithInspectorSkew(30*time.Second),
		)

		raw := forgeToken(t, "u", session.RoleCustomer, now.Add(-10*time.Second))
		claims, err := tolerant.Inspect(raw)
		require.NoError(t, err)

		assert.False(t, tolerant.IsExpired(claims))
		assert.True(t, tolerant.IsExpiredAt(claims, now.Add(time.Minute)))
	})
}
