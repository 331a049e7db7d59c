// Package devserver is an in-memory authentication service for local development,
// tests and load runs. It speaks the same contract as the production service:
// it implements [remote.Service] directly and serves it over HTTP.
//
// # What this package must NOT do
//
//   - Persist anything. Restarting the server forgets every user, code and token.
//   - Be used as a production identity provider.
package devserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/versini-org/auth-client/jwt"
	"github.com/versini-org/auth-client/remote"
)

// Config configures a [Server].
type Config struct {
	Issuer *jwt.Issuer
	// AccessTTL is the lifetime of issued access tokens.
	AccessTTL time.Duration
	// IDTTL is the default identity token lifetime, overridden by a parseable
	// sessionExpiration on the exchange request.
	IDTTL time.Duration
	// CodeTTL bounds how long a pre-authorization code may wait for its exchange.
	CodeTTL time.Duration
	Logger  *slog.Logger
}

type user struct {
	password string
	userID   string
}

type pendingCode struct {
	nonce     string
	clientID  string
	challenge string
	expiresAt time.Time
}

type grant struct {
	userID   string
	username string
	clientID string
}

// Server is an in-memory [remote.Service].
type Server struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	users    map[string]user
	codes    map[string]pendingCode
	refreshs map[string]grant

	preAuthCalls  atomic.Int64
	exchangeCalls atomic.Int64
	refreshCalls  atomic.Int64
	logoutCalls   atomic.Int64
}

// New creates a server with no users.
func New(cfg Config) (*Server, error) {
	if cfg.Issuer == nil {
		return nil, errors.New("devserver: issuer required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 5 * time.Minute
	}
	if cfg.IDTTL <= 0 {
		cfg.IDTTL = 24 * time.Hour
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		now:      time.Now,
		users:    make(map[string]user),
		codes:    make(map[string]pendingCode),
		refreshs: make(map[string]grant),
	}, nil
}

// AddUser registers a username/password pair under userID.
func (s *Server) AddUser(username, password, userID string) {
	s.mu.Lock()
	s.users[username] = user{password: password, userID: userID}
	s.mu.Unlock()
}

// Calls reports how many times each endpoint was invoked.
type Calls struct {
	PreAuth  int64
	Exchange int64
	Refresh  int64
	Logout   int64
}

func (s *Server) Calls() Calls {
	return Calls{
		PreAuth:  s.preAuthCalls.Load(),
		Exchange: s.exchangeCalls.Load(),
		Refresh:  s.refreshCalls.Load(),
		Logout:   s.logoutCalls.Load(),
	}
}

// ActiveRefreshTokens is the number of refresh tokens that can still be redeemed.
func (s *Server) ActiveRefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshs)
}

func (s *Server) RequestPreAuthCode(ctx context.Context, req remote.PreAuthRequest) (remote.PreAuthResponse, error) {
	s.preAuthCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return remote.PreAuthResponse{}, err
	}
	if req.Nonce == "" || req.ClientID == "" || req.CodeChallenge == "" {
		return remote.PreAuthResponse{Status: false}, nil
	}

	code := uuid.NewString()
	s.mu.Lock()
	s.codes[code] = pendingCode{
		nonce:     req.Nonce,
		clientID:  req.ClientID,
		challenge: req.CodeChallenge,
		expiresAt: s.now().Add(s.cfg.CodeTTL),
	}
	s.mu.Unlock()
	return remote.PreAuthResponse{Status: true, Code: code}, nil
}

func (s *Server) ExchangeForTokens(ctx context.Context, req remote.ExchangeRequest) (remote.ExchangeResponse, error) {
	s.exchangeCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return remote.ExchangeResponse{}, err
	}

	s.mu.Lock()
	u, known := s.users[req.Username]
	var codeOK bool
	if req.Type == remote.GrantCode {
		pc, ok := s.codes[req.Code]
		delete(s.codes, req.Code)
		codeOK = ok &&
			s.now().Before(pc.expiresAt) &&
			pc.nonce == req.Nonce &&
			pc.clientID == req.ClientID &&
			challengeMatches(pc.challenge, req.CodeVerifier)
	}
	s.mu.Unlock()

	switch {
	case !req.Type.Valid(), req.ClientID == "", req.Nonce == "":
		return remote.ExchangeResponse{Status: false}, nil
	case !known || subtle.ConstantTimeCompare([]byte(u.password), []byte(req.Password)) != 1:
		s.cfg.Logger.Info("devserver: credentials rejected", "grant", string(req.Type))
		return remote.ExchangeResponse{Status: false}, nil
	case req.Type == remote.GrantCode && !codeOK:
		s.cfg.Logger.Info("devserver: authorization code rejected")
		return remote.ExchangeResponse{Status: false}, nil
	}

	idTTL := s.cfg.IDTTL
	if d, err := time.ParseDuration(req.SessionExpiration); err == nil && d > 0 {
		idTTL = d
	}
	idToken, err := s.cfg.Issuer.Issue(u.userID, req.Username, idTTL)
	if err != nil {
		return remote.ExchangeResponse{}, err
	}
	access, err := s.cfg.Issuer.Issue(u.userID, req.Username, s.cfg.AccessTTL)
	if err != nil {
		return remote.ExchangeResponse{}, err
	}
	refresh := s.grantRefresh(grant{userID: u.userID, username: req.Username, clientID: req.ClientID})

	return remote.ExchangeResponse{
		Status:       true,
		IDToken:      idToken,
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       u.userID,
	}, nil
}

// RefreshTokens rotates the refresh token: the presented token is consumed even
// when the request is otherwise rejected.
func (s *Server) RefreshTokens(ctx context.Context, req remote.RefreshRequest) (remote.RefreshResponse, error) {
	s.refreshCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return remote.RefreshResponse{}, err
	}

	s.mu.Lock()
	g, ok := s.refreshs[req.RefreshToken]
	delete(s.refreshs, req.RefreshToken)
	s.mu.Unlock()

	if !ok || g.userID != req.UserID || g.clientID != req.ClientID {
		return remote.RefreshResponse{Status: remote.RefreshFailure}, nil
	}

	access, err := s.cfg.Issuer.Issue(g.userID, g.username, s.cfg.AccessTTL)
	if err != nil {
		return remote.RefreshResponse{}, err
	}
	return remote.RefreshResponse{
		Status:          remote.RefreshSuccess,
		NewAccessToken:  access,
		NewRefreshToken: s.grantRefresh(g),
	}, nil
}

func (s *Server) NotifyLogout(ctx context.Context, req remote.LogoutRequest) error {
	s.logoutCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.RefreshToken != "" {
		s.mu.Lock()
		delete(s.refreshs, req.RefreshToken)
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) grantRefresh(g grant) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.refreshs[token] = g
	s.mu.Unlock()
	return token
}

func challengeMatches(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	got := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(got), []byte(challenge)) == 1
}
