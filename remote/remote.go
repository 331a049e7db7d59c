// Package remote defines the authentication service port consumed by the session
// manager and an HTTP/JSON client for it.
//
// # Architecture boundaries
//
// Request and response shapes mirror the remote service's contract. A rejected
// credential is reported through the Status fields, never through the error return:
// errors mean the call itself failed (transport, decoding, server fault).
package remote

import (
	"context"
	"errors"
)

// ErrTransport wraps every failure to complete a remote call.
var ErrTransport = errors.New("remote: transport failure")

// GrantType selects how a login exchanges credentials for tokens.
type GrantType string

const (
	// GrantPassword exchanges username and password directly.
	GrantPassword GrantType = "PASSWORD"
	// GrantCode first obtains a pre-authorization code bound to a PKCE challenge.
	GrantCode GrantType = "CODE"
)

// Valid reports whether g is a supported grant.
func (g GrantType) Valid() bool {
	return g == GrantPassword || g == GrantCode
}

type PreAuthRequest struct {
	Nonce         string `json:"nonce"`
	ClientID      string `json:"clientId"`
	CodeChallenge string `json:"code_challenge"`
}

type PreAuthResponse struct {
	Status bool   `json:"status"`
	Code   string `json:"code,omitempty"`
}

type ExchangeRequest struct {
	Username          string    `json:"username"`
	Password          string    `json:"password"`
	ClientID          string    `json:"clientId"`
	SessionExpiration string    `json:"sessionExpiration,omitempty"`
	Nonce             string    `json:"nonce"`
	Type              GrantType `json:"type"`
	Code              string    `json:"code,omitempty"`
	CodeVerifier      string    `json:"code_verifier,omitempty"`
}

type ExchangeResponse struct {
	Status       bool   `json:"status"`
	IDToken      string `json:"idToken,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

type RefreshRequest struct {
	ClientID     string `json:"clientId"`
	UserID       string `json:"userId"`
	Nonce        string `json:"nonce"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshStatus is the outcome reported by the refresh endpoint.
type RefreshStatus string

const (
	RefreshSuccess RefreshStatus = "success"
	RefreshFailure RefreshStatus = "failure"
)

type RefreshResponse struct {
	Status          RefreshStatus `json:"status"`
	NewAccessToken  string        `json:"newAccessToken,omitempty"`
	NewRefreshToken string        `json:"newRefreshToken,omitempty"`
}

type LogoutRequest struct {
	IDToken      string `json:"idToken,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ClientID     string `json:"clientId"`
}

// Service is the remote authentication service.
type Service interface {
	RequestPreAuthCode(ctx context.Context, req PreAuthRequest) (PreAuthResponse, error)
	ExchangeForTokens(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error)
	RefreshTokens(ctx context.Context, req RefreshRequest) (RefreshResponse, error)
	NotifyLogout(ctx context.Context, req LogoutRequest) error
}
