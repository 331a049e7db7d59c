package middleware

import (
	"context"
	"errors"
	"net/http"

	authclient "github.com/versini-org/auth-client"
)

// ErrNoAccessToken is returned by [Transport] when the session has no usable
// access token. The request is not sent.
var ErrNoAccessToken = errors.New("middleware: no access token")

// TokenSource supplies access tokens. [authclient.Manager] implements it.
type TokenSource interface {
	GetAccessToken(ctx context.Context) string
	Invalidate(ctx context.Context, reason string)
}

// Transport is an [http.RoundTripper] that authenticates outgoing requests with
// the session's access token. A 401 answer invalidates the session with
// [authclient.ReasonAccessTokenError]. A request whose context ended before a
// token was available fails with the context error and leaves the session alone.
type Transport struct {
	Source TokenSource
	// Base defaults to [http.DefaultTransport].
	Base http.RoundTripper
}

// NewClient returns an *http.Client whose requests carry tokens from src.
func NewClient(src TokenSource) *http.Client {
	return &http.Client{Transport: &Transport{Source: src}}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Source == nil {
		return nil, ErrNoAccessToken
	}
	ctx := req.Context()

	token := t.Source.GetAccessToken(ctx)
	if token == "" {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoAccessToken
	}

	out := req.Clone(ctx)
	out.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.Source.Invalidate(ctx, authclient.ReasonAccessTokenError)
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
