package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
)

// HTTPIdentityProvider talks JSON to an identity provider exposing
// POST /authenticate and POST /register.
//
// Status mapping: 2xx is success, 401/403 on authenticate is rejected
// credentials, 409 on register is a taken email, 400/422 is a validation
// failure. Every other status, transport errors and timeouts are
// ErrProviderUnavailable.
type HTTPIdentityProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPIdentityProvider returns a client with the given request timeout.
func NewHTTPIdentityProvider(baseURL string, timeout time.Duration) *HTTPIdentityProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPIdentityProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type idpRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p *HTTPIdentityProvider) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	return p.call(ctx, "/authenticate", idpRequest{Email: email, Password: password})
}

func (p *HTTPIdentityProvider) Register(ctx context.Context, name, email, password string) (Identity, error) {
	return p.call(ctx, "/register", idpRequest{Name: name, Email: email, Password: password})
}

func (p *HTTPIdentityProvider) call(ctx context.Context, path string, body idpRequest) (Identity, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return Identity{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var id Identity
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&id); err != nil {
			return Identity{}, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
		}
		return id, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, apperr.ErrInvalidCredentials
	case resp.StatusCode == http.StatusConflict:
		return Identity{}, apperr.ErrConflict
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return Identity{}, apperr.Validation("rejected by identity provider")
	default:
		return Identity{}, fmt.Errorf("%w: %s returned %d", ErrProviderUnavailable, path, resp.StatusCode)
	}
}
