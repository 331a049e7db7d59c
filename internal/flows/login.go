package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/versini-org/auth-client/internal"
	"github.com/versini-org/auth-client/remote"
	"github.com/versini-org/auth-client/store"
)

var (
	errPreAuthRejected    = errors.New("pre-authorization rejected")
	errExchangeRejected   = errors.New("token exchange rejected")
	errExchangeIncomplete = errors.New("token exchange response incomplete")
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUnsupportedGrant
	LoginFailurePKCE
	LoginFailureTransport
	LoginFailureRejected
	LoginFailureIncomplete
)

// LoginRequest is one login attempt. It is never persisted.
type LoginRequest struct {
	Username string
	Password string
	Grant    remote.GrantType
}

// LoginResult carries either the token triple and user or failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	Tokens   store.Triple
	UserID   string
	Username string
}

type LoginService interface {
	RequestPreAuthCode(ctx context.Context, req remote.PreAuthRequest) (remote.PreAuthResponse, error)
	ExchangeForTokens(ctx context.Context, req remote.ExchangeRequest) (remote.ExchangeResponse, error)
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Service     LoginService
	NewPKCEPair func() (internal.PKCEPair, error)
	Warn        func(string, ...any)
}

// RunLogin drives the requested grant to completion. Nothing is persisted here,
// so a failed CODE attempt cannot leave a code without its verifier behind.
func RunLogin(ctx context.Context, req LoginRequest, nonce, clientID, sessionExpiration string, deps LoginDeps) LoginResult {
	exchange := remote.ExchangeRequest{
		Username:          req.Username,
		Password:          req.Password,
		ClientID:          clientID,
		SessionExpiration: sessionExpiration,
		Nonce:             nonce,
		Type:              req.Grant,
	}

	switch req.Grant {
	case remote.GrantPassword:
	case remote.GrantCode:
		pkce, err := deps.NewPKCEPair()
		if err != nil {
			return LoginResult{Failure: LoginFailurePKCE, Err: err}
		}

		pre, err := deps.Service.RequestPreAuthCode(ctx, remote.PreAuthRequest{
			Nonce:         nonce,
			ClientID:      clientID,
			CodeChallenge: pkce.Challenge,
		})
		if err != nil {
			return LoginResult{Failure: LoginFailureTransport, Err: err}
		}
		if !pre.Status || pre.Code == "" {
			return LoginResult{Failure: LoginFailureRejected, Err: errPreAuthRejected}
		}

		exchange.Code = pre.Code
		exchange.CodeVerifier = pkce.Verifier
	default:
		return LoginResult{
			Failure: LoginFailureUnsupportedGrant,
			Err:     fmt.Errorf("unsupported grant type %q", req.Grant),
		}
	}

	resp, err := deps.Service.ExchangeForTokens(ctx, exchange)
	if err != nil {
		return LoginResult{Failure: LoginFailureTransport, Err: err}
	}
	if !resp.Status {
		return LoginResult{Failure: LoginFailureRejected, Err: errExchangeRejected}
	}

	tokens := store.Triple{
		IDToken:      resp.IDToken,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if tokens.IDToken == "" || tokens.AccessToken == "" || tokens.RefreshToken == "" || resp.UserID == "" {
		if deps.Warn != nil {
			deps.Warn("authclient: exchange reported success without a full token set", "grant", string(req.Grant))
		}
		return LoginResult{Failure: LoginFailureIncomplete, Err: errExchangeIncomplete}
	}

	return LoginResult{
		Failure:  LoginFailureNone,
		Tokens:   tokens,
		UserID:   resp.UserID,
		Username: req.Username,
	}
}
