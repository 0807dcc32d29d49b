package session

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Principal is the authenticated identity as confirmed by the backend. It is
// immutable except by replacement (re-fetch or re-login).
type Principal struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// TokenGrant is what the identity service hands back after a successful
// password login or an OAuth-style callback exchange.
type TokenGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// IdentityClient is the fixed contract with the backend identity service.
// The service is ground truth; this package only consumes it.
type IdentityClient interface {
	Login(ctx context.Context, email, password string) (*TokenGrant, error)
	Me(ctx context.Context, accessToken string) (*Principal, error)
	Logout(ctx context.Context, accessToken string) error
	Register(ctx context.Context, payload RegisterPayload) (*Principal, error)
	ExternalLoginURL(ctx context.Context) (string, error)
}

// TokenSource supplies the gateway with the current access token and receives
// expiry signals back. The generation lets the source discard signals raised
// by requests that started under a session that no longer exists.
type TokenSource interface {
	AccessToken() (token string, generation uint64, ok bool)
	NotifyExpired(ctx context.Context, generation uint64)
}

// DefaultLogger returns the stdout logger used when no Logger is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
