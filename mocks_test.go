package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	session "github.com/rentora/go-session"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockIdentityClient implements session.IdentityClient
type MockIdentityClient struct {
	mock.Mock
}

func (m *MockIdentityClient) Login(ctx context.Context, email, password string) (*session.TokenGrant, error) {
	args := m.Called(ctx, email, password)
	var grant *session.TokenGrant
	if v := args.Get(0); v != nil {
		grant = v.(*session.TokenGrant)
	}
	return grant, args.Error(1)
}

func (m *MockIdentityClient) Me(ctx context.Context, accessToken string) (*session.Principal, error) {
	args := m.Called(ctx, accessToken)
	var principal *session.Principal
	if v := args.Get(0); v != nil {
		principal = v.(*session.Principal)
	}
	return principal, args.Error(1)
}

func (m *MockIdentityClient) Logout(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockIdentityClient) Register(ctx context.Context, payload session.RegisterPayload) (*session.Principal, error) {
	args := m.Called(ctx, payload)
	var principal *session.Principal
	if v := args.Get(0); v != nil {
		principal = v.(*session.Principal)
	}
	return principal, args.Error(1)
}

func (m *MockIdentityClient) ExternalLoginURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// recordingSink captures activity events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []session.ActivityEvent
}

func (s *recordingSink) Record(ctx context.Context, event session.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) byType(eventType session.ActivityEventType) []session.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.ActivityEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// forgeToken builds a structurally valid bearer token. The signature is
// irrelevant: nothing client-side verifies it.
func forgeToken(t *testing.T, subject string, role session.Role, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"email": subject + "@example.com",
		"role":  string(role),
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Add(-time.Minute).Unix(),
	})

	signed, err := token.SignedString([]byte("unit-test-key"))
	require.NoError(t, err)
	return signed
}

func testPrincipal(role session.Role) *session.Principal {
	return &session.Principal{
		ID:    "usr-100",
		Email: "user@example.com",
		Role:  role,
		Name:  "Test User",
	}
}

func testBundle(t *testing.T, role session.Role, expiresAt time.Time) *session.CredentialBundle {
	t.Helper()
	return &session.CredentialBundle{
		AccessToken:  forgeToken(t, "usr-100", role, expiresAt),
		RefreshToken: "refresh-token-1",
		Principal:    *testPrincipal(role),
		IssuedAt:     time.Now(),
	}
}
