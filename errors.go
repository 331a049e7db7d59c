package authclient

import "errors"

var (
	// ErrCredentials reports that the remote service rejected the username and
	// password, or the authorization code and verifier.
	ErrCredentials = errors.New("credentials rejected")
	// ErrTokenInvalid reports that a persisted identity or access token failed local validation.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrRefreshFailed reports that the remote service refused to rotate the refresh token.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrTransport wraps unexpected failures of a remote call, the token store or a generator.
	ErrTransport = errors.New("transport failure")
	// ErrLogoutNotify reports that the remote service could not be told about a logout.
	ErrLogoutNotify = errors.New("logout notification failed")
	// ErrNotAuthenticated is returned when an access token is requested without a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionSuperseded is returned by an operation whose session was invalidated
	// while it was in flight.
	ErrSessionSuperseded = errors.New("session superseded")
	// ErrUnsupportedGrant is returned for a login grant other than PASSWORD or CODE.
	ErrUnsupportedGrant = errors.New("unsupported grant type")
	// ErrManagerNotReady is returned by operations on a nil or closed Manager.
	ErrManagerNotReady = errors.New("manager not ready")
)

// Reasons recorded in [Session.LogoutReason] by the Manager.
const (
	ReasonExpiredSession   = "expired session"
	ReasonLoginFailed      = "login failed"
	ReasonLogout           = "logout"
	ReasonAccessTokenError = "access token error"
)
