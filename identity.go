package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// Credentials is a password login payload. Validation happens before any
// network call.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required),
	)
}

// RegisterPayload is a self-service registration request. Only customer and
// property owner accounts can be self-registered.
type RegisterPayload struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"-"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	Role            Role   `json:"role"`
}

func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.PasswordConfirm, validation.Required, validation.By(func(any) error {
			if r.PasswordConfirm != r.Password {
				return fmt.Errorf("password confirmation does not match")
			}
			return nil
		})),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Phone, validation.By(validPhone)),
		validation.Field(&r.Role, validation.Required, validation.In(RoleCustomer, RolePropertyOwner)),
	)
}

func validPhone(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}

	parsed, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return fmt.Errorf("invalid phone number")
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return fmt.Errorf("invalid phone number")
	}
	return nil
}

type externalLoginResponse struct {
	AuthURL string `json:"auth_url"`
}

// HTTPIdentityClient talks to the backend identity service. Login uses the
// form-encoded body the service expects; everything else is JSON.
type HTTPIdentityClient struct {
	baseURL string
	client  *http.Client
	logger  Logger
}

var _ IdentityClient = (*HTTPIdentityClient)(nil)

// IdentityClientOption customizes an HTTPIdentityClient.
type IdentityClientOption func(*HTTPIdentityClient)

// WithIdentityHTTPClient overrides the HTTP client.
func WithIdentityHTTPClient(client *http.Client) IdentityClientOption {
	return func(c *HTTPIdentityClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithIdentityLogger overrides the logger.
func WithIdentityLogger(logger Logger) IdentityClientOption {
	return func(c *HTTPIdentityClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewIdentityClient builds a client against the service base URL.
func NewIdentityClient(baseURL string, opts ...IdentityClientOption) *HTTPIdentityClient {
	c := &HTTPIdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Login exchanges credentials for a token grant. A response missing either
// token is a contract violation, not a partial login.
func (c *HTTPIdentityClient) Login(ctx context.Context, email, password string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/users/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, WrapNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapNetworkError(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, goerrors.New("invalid email or password", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp.StatusCode, body)
	}

	grant := &TokenGrant{}
	if err := json.Unmarshal(body, grant); err != nil {
		clone := ErrGrantIncomplete.Clone()
		if clone == nil {
			return nil, ErrGrantIncomplete
		}
		clone.Source = ErrGrantIncomplete
		return nil, clone.WithMetadata(map[string]any{
			"reason": "unparseable login response",
		})
	}

	if grant.AccessToken == "" || grant.RefreshToken == "" {
		return nil, ErrGrantIncomplete
	}

	return grant, nil
}

// Me fetches the full principal for an access token; this is the only
// authorization-grade source of the role.
func (c *HTTPIdentityClient) Me(ctx context.Context, accessToken string) (*Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, WrapNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapNetworkError(err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp.StatusCode, body)
	}

	principal := &Principal{}
	if err := json.Unmarshal(body, principal); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "unparseable principal response")
	}

	return principal, nil
}

// Logout revokes the token server-side. Callers treat failures as
// best-effort; local teardown never waits on this.
func (c *HTTPIdentityClient) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return WrapNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return responseError(resp.StatusCode, body)
	}

	return nil
}

// Register creates a new account. The returned principal is not logged in;
// callers follow up with Login.
func (c *HTTPIdentityClient) Register(ctx context.Context, payload RegisterPayload) (*Principal, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/users/register", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, WrapNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp.StatusCode, body)
	}

	principal := &Principal{}
	if err := json.Unmarshal(body, principal); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "unparseable principal response")
	}

	return principal, nil
}

// ExternalLoginURL asks the backend where to send the browser for an
// OAuth-style login. Tokens come back as callback parameters and feed
// Manager.InjectTokens.
func (c *HTTPIdentityClient) ExternalLoginURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/users/google/login", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", WrapNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", WrapNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", responseError(resp.StatusCode, body)
	}

	var out externalLoginResponse
	if err := json.Unmarshal(body, &out); err != nil || out.AuthURL == "" {
		return "", goerrors.New("unparseable external login response", goerrors.CategoryOperation)
	}

	return out.AuthURL, nil
}
