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

	goerrors "github.com/goliatone/go-errors"
)

// Gateway wraps every outbound call that requires a principal. It attaches
// the current bearer token, raises expiry into the session manager on
// 401/403, and normalizes response handling. It never retries after an auth
// rejection: the backend said no, and retrying with the same token can only
// loop.
type Gateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	logger  Logger
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayHTTPClient overrides the HTTP client.
func WithGatewayHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithGatewayLogger overrides the logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway builds a gateway against the API base URL. The token source is
// normally the Manager.
func NewGateway(baseURL string, tokens TokenSource, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Call performs an authenticated request and returns the raw response body.
// A url.Values body is form-encoded; anything else non-nil is sent as JSON.
//
// Without a credential it returns ErrUnauthorized immediately, before any
// network I/O. Callers fetching optional data should treat that as "no data"
// rather than a hard failure.
func (g *Gateway) Call(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	token, generation, ok := g.tokens.AccessToken()
	if !ok {
		return nil, ErrUnauthorized
	}

	req, err := g.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, WrapNetworkError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		g.logger.Info("authenticated call rejected (%d), raising expiry: %s %s", resp.StatusCode, method, endpoint)
		g.tokens.NotifyExpired(ctx, generation)
		return nil, ErrAuthExpired

	case resp.StatusCode == http.StatusNoContent:
		return nil, nil

	case method == http.MethodDelete && resp.StatusCode == http.StatusNotFound:
		// deleting an already-absent resource is not a failure
		return nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp.StatusCode, raw)
	}

	return raw, nil
}

// CallJSON is Call plus JSON decoding of the response into out. A nil out or
// an empty response body skips decoding.
func (g *Gateway) CallJSON(ctx context.Context, method, endpoint string, body, out any) error {
	raw, err := g.Call(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "unparseable response payload")
	}

	return nil
}

// Get is shorthand for a JSON GET.
func (g *Gateway) Get(ctx context.Context, endpoint string, out any) error {
	return g.CallJSON(ctx, http.MethodGet, endpoint, nil, out)
}

// Post is shorthand for a JSON POST.
func (g *Gateway) Post(ctx context.Context, endpoint string, body, out any) error {
	return g.CallJSON(ctx, http.MethodPost, endpoint, body, out)
}

// Put is shorthand for a JSON PUT.
func (g *Gateway) Put(ctx context.Context, endpoint string, body, out any) error {
	return g.CallJSON(ctx, http.MethodPut, endpoint, body, out)
}

// Delete is shorthand for a DELETE; a 404 counts as success.
func (g *Gateway) Delete(ctx context.Context, endpoint string) error {
	return g.CallJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (g *Gateway) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	target := g.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	var reader io.Reader
	contentType := ""

	switch payload := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(payload.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

type errorPayload struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// responseError turns a non-2xx response into a typed error with a non-empty
// message: the structured payload when parseable, the raw body text
// otherwise, a status line as a last resort.
func responseError(status int, body []byte) error {
	message := ""

	payload := errorPayload{}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			message = payload.Detail
		} else if payload.Message != "" {
			message = payload.Message
		}
	}

	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = fmt.Sprintf("API error: %d %s", status, http.StatusText(status))
	}

	category := goerrors.CategoryOperation
	code := goerrors.CodeInternal
	switch status {
	case http.StatusBadRequest:
		category = goerrors.CategoryBadInput
		code = goerrors.CodeBadRequest
	case http.StatusNotFound:
		category = goerrors.CategoryNotFound
		code = goerrors.CodeNotFound
	case http.StatusConflict:
		category = goerrors.CategoryConflict
		code = goerrors.CodeConflict
	case http.StatusUnprocessableEntity:
		category = goerrors.CategoryValidation
		code = goerrors.CodeBadRequest
	}

	return goerrors.New(message, category).
		WithCode(code).
		WithMetadata(map[string]any{"status": status})
}
