package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Paths are the endpoint paths appended to the client's base URL.
type Paths struct {
	PreAuth  string
	Exchange string
	Refresh  string
	Logout   string
}

// DefaultPaths is used when no paths are configured.
var DefaultPaths = Paths{
	PreAuth:  "/preauth",
	Exchange: "/token",
	Refresh:  "/refresh",
	Logout:   "/logout",
}

const maxResponseBytes = 1 << 20

// HTTPClient implements [Service] as JSON over HTTP POST.
//
// 2xx responses are decoded as the endpoint's response type. 401 and 403 are
// treated as a rejection (Status false / failure) so bad credentials are never
// reported as transport errors. Every other status is an [ErrTransport].
type HTTPClient struct {
	baseURL string
	paths   Paths
	client  *http.Client
}

// HTTPOption customizes an [HTTPClient].
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithPaths overrides endpoint paths; empty fields keep their defaults.
func WithPaths(p Paths) HTTPOption {
	return func(h *HTTPClient) {
		if p.PreAuth != "" {
			h.paths.PreAuth = p.PreAuth
		}
		if p.Exchange != "" {
			h.paths.Exchange = p.Exchange
		}
		if p.Refresh != "" {
			h.paths.Refresh = p.Refresh
		}
		if p.Logout != "" {
			h.paths.Logout = p.Logout
		}
	}
}

// NewHTTPClient creates a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote: base url required")
	}
	h := &HTTPClient{
		baseURL: baseURL,
		paths:   DefaultPaths,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HTTPClient) RequestPreAuthCode(ctx context.Context, req PreAuthRequest) (PreAuthResponse, error) {
	var out PreAuthResponse
	rejected, err := h.post(ctx, h.paths.PreAuth, req, &out)
	if err != nil {
		return PreAuthResponse{}, err
	}
	if rejected {
		return PreAuthResponse{Status: false}, nil
	}
	return out, nil
}

func (h *HTTPClient) ExchangeForTokens(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error) {
	var out ExchangeResponse
	rejected, err := h.post(ctx, h.paths.Exchange, req, &out)
	if err != nil {
		return ExchangeResponse{}, err
	}
	if rejected {
		return ExchangeResponse{Status: false}, nil
	}
	return out, nil
}

func (h *HTTPClient) RefreshTokens(ctx context.Context, req RefreshRequest) (RefreshResponse, error) {
	var out RefreshResponse
	rejected, err := h.post(ctx, h.paths.Refresh, req, &out)
	if err != nil {
		return RefreshResponse{}, err
	}
	if rejected {
		return RefreshResponse{Status: RefreshFailure}, nil
	}
	return out, nil
}

func (h *HTTPClient) NotifyLogout(ctx context.Context, req LogoutRequest) error {
	rejected, err := h.post(ctx, h.paths.Logout, req, nil)
	if err != nil {
		return err
	}
	if rejected {
		return fmt.Errorf("%w: logout rejected", ErrTransport)
	}
	return nil
}

func (h *HTTPClient) post(ctx context.Context, path string, in, out any) (bool, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return false, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return true, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return false, fmt.Errorf("%w: %s %s returned %d", ErrTransport, http.MethodPost, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return false, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return false, fmt.Errorf("%w: decode %s response: %v", ErrTransport, path, err)
	}
	return false, nil
}
