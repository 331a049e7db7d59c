package flows

import (
	"context"
	"errors"

	"github.com/versini-org/auth-client/remote"
)

var (
	errNoRefreshToken    = errors.New("no refresh token")
	errRefreshRejected   = errors.New("refresh rejected")
	errRefreshIncomplete = errors.New("refresh response incomplete")
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissingToken
	RefreshFailureTransport
	RefreshFailureRejected
	RefreshFailureIncomplete
)

// RefreshInput is what the Manager reads from the store before a refresh.
type RefreshInput struct {
	ClientID     string
	UserID       string
	Nonce        string
	RefreshToken string
}

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	AccessToken  string
	RefreshToken string
}

type RefreshService interface {
	RefreshTokens(ctx context.Context, req remote.RefreshRequest) (remote.RefreshResponse, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Service RefreshService
	Warn    func(string, ...any)
}

// RunRefresh exchanges the refresh token for a new access/refresh pair. Any
// failure is terminal for the session: there is no retry and no fallback.
func RunRefresh(ctx context.Context, in RefreshInput, deps RefreshDeps) RefreshResult {
	if in.RefreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissingToken, Err: errNoRefreshToken}
	}

	resp, err := deps.Service.RefreshTokens(ctx, remote.RefreshRequest{
		ClientID:     in.ClientID,
		UserID:       in.UserID,
		Nonce:        in.Nonce,
		RefreshToken: in.RefreshToken,
	})
	if err != nil {
		return RefreshResult{Failure: RefreshFailureTransport, Err: err}
	}
	if resp.Status != remote.RefreshSuccess {
		return RefreshResult{Failure: RefreshFailureRejected, Err: errRefreshRejected}
	}
	if resp.NewAccessToken == "" || resp.NewRefreshToken == "" {
		if deps.Warn != nil {
			deps.Warn("authclient: refresh reported success without a full token pair")
		}
		return RefreshResult{Failure: RefreshFailureIncomplete, Err: errRefreshIncomplete}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		AccessToken:  resp.NewAccessToken,
		RefreshToken: resp.NewRefreshToken,
	}
}
