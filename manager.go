package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/versini-org/auth-client/internal"
	"github.com/versini-org/auth-client/internal/audit"
	"github.com/versini-org/auth-client/internal/flows"
	"github.com/versini-org/auth-client/jwt"
	"github.com/versini-org/auth-client/remote"
	"github.com/versini-org/auth-client/store"
)

// GrantType selects the login exchange.
type GrantType = remote.GrantType

const (
	GrantPassword = remote.GrantPassword
	GrantCode     = remote.GrantCode
)

// TokenValidator verifies a token and extracts its claims. [jwt.Verifier]
// implements it.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

// PKCEPair is a code verifier and its S256 challenge.
type PKCEPair = internal.PKCEPair

const refreshFlightKey = "refresh"

// Manager owns one client's authentication session. It is the only writer of
// the token store.
//
// Methods are safe for concurrent use. Login and refresh are serialized; at
// most one refresh runs at a time and concurrent GetAccessToken callers share
// it. Invalidate never waits for an in-flight operation: the operation notices
// the newer generation when it finishes and reports ErrSessionSuperseded
// instead of publishing its tokens. Every store write and clear re-checks the
// generation under storeMu, so only the newest transition touches the slots.
type Manager struct {
	config    Config
	tokens    *store.TokenStore
	validator TokenValidator
	flowDeps  flows.Deps
	newNonce  func() (string, error)
	logger    *slog.Logger
	audit     *audit.Dispatcher
	metrics   *Metrics

	bootstrapped atomic.Bool
	closed       atomic.Bool

	mu         sync.Mutex
	session    Session
	generation uint64
	subs       *broadcaster

	opMu    sync.Mutex
	refresh singleflight.Group

	// storeMu orders token writes against clears. Lock order: storeMu, then mu.
	storeMu sync.Mutex
}

// State returns the current session.
func (m *Manager) State() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.clone()
}

// Subscribe returns a channel that first receives the current session and then
// every transition. A slow reader only sees the latest value. The returned
// function unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs.subscribe(m.session)
}

// Bootstrap restores a persisted session. It runs at most once per Manager;
// later calls and calls after a Login return immediately. If ctx ends before a
// decision is made the session stays Loading and Bootstrap may be called again.
func (m *Manager) Bootstrap(ctx context.Context) {
	if !m.bootstrapped.CompareAndSwap(false, true) {
		return
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	gen := m.currentGeneration()

	idToken, ok, err := m.tokens.Get(ctx, store.FieldIDToken)
	if err != nil && ctx.Err() != nil {
		m.bootstrapped.Store(false)
		return
	}
	if err != nil {
		m.logger.Warn("authclient: reading persisted identity token failed", "error", err)
		m.expireSession(ctx, gen)
		return
	}
	if !ok {
		m.mu.Lock()
		if m.generation == gen {
			m.setStateLocked(unauthenticatedSession(""))
		}
		m.mu.Unlock()
		return
	}

	claims, valid := flows.ValidateToken(ctx, m.validator, idToken)
	if !valid && ctx.Err() != nil {
		m.bootstrapped.Store(false)
		return
	}
	if !valid {
		m.expireSession(ctx, gen)
		return
	}

	user := User{UserID: claims.UserID(), Username: claims.Username}
	m.mu.Lock()
	restored := m.generation == gen
	if restored {
		m.setStateLocked(authenticatedSession(user))
	}
	m.mu.Unlock()

	if restored {
		m.metrics.Inc(MetricSessionRestored)
		m.emitAudit(ctx, AuditEvent{EventType: AuditSessionRestored, UserID: user.UserID, Success: true})
	}
}

func (m *Manager) expireSession(ctx context.Context, gen uint64) {
	m.metrics.Inc(MetricSessionExpired)
	m.emitAudit(ctx, AuditEvent{EventType: AuditSessionExpired, Reason: ReasonExpiredSession})
	m.invalidateIfCurrent(ctx, gen, ReasonExpiredSession)
}

// Login authenticates with the given grant and reports whether a session was
// established. Every failure leaves the session Unauthenticated.
func (m *Manager) Login(ctx context.Context, username, password string, grant GrantType) bool {
	_, err := m.LoginWithResult(ctx, username, password, grant)
	return err == nil
}

// LoginWithResult is [Manager.Login] returning the user or the classified
// failure: [ErrCredentials], [ErrTransport], [ErrUnsupportedGrant] or
// [ErrSessionSuperseded].
func (m *Manager) LoginWithResult(ctx context.Context, username, password string, grant GrantType) (User, error) {
	if m == nil || m.closed.Load() {
		return User{}, ErrManagerNotReady
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	start := time.Now()
	m.bootstrapped.Store(true)

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.setStateLocked(loadingSession())
	m.mu.Unlock()

	nonce, err := m.newNonce()
	if err != nil {
		return User{}, m.failLogin(ctx, gen, start, fmt.Errorf("%w: nonce: %v", ErrTransport, err))
	}
	if err := m.writeTokens(ctx, gen, func(ctx context.Context) error {
		return m.tokens.Set(ctx, store.FieldNonce, nonce)
	}); err != nil {
		return User{}, m.failLogin(ctx, gen, start, err)
	}

	res := flows.RunLogin(ctx, flows.LoginRequest{
		Username: username,
		Password: password,
		Grant:    grant,
	}, nonce, m.config.ClientID, m.config.SessionExpiration, m.flowDeps.Login)
	if res.Failure != flows.LoginFailureNone {
		return User{}, m.failLogin(ctx, gen, start, mapLoginFailure(res))
	}

	if err := m.writeTokens(ctx, gen, func(ctx context.Context) error {
		return m.tokens.SetTriple(ctx, res.Tokens)
	}); err != nil {
		return User{}, m.failLogin(ctx, gen, start, err)
	}

	user := User{UserID: res.UserID, Username: res.Username}
	m.mu.Lock()
	current := m.generation == gen
	if current {
		m.setStateLocked(authenticatedSession(user))
	}
	m.mu.Unlock()

	if !current {
		return User{}, m.failLogin(ctx, gen, start, ErrSessionSuperseded)
	}

	m.metrics.Inc(MetricLoginSuccess)
	m.metrics.Observe(MetricLoginLatency, time.Since(start))
	m.emitAudit(ctx, AuditEvent{
		EventType: AuditLoginSuccess,
		UserID:    user.UserID,
		Success:   true,
		Metadata:  map[string]string{"grant": string(grant)},
	})
	return user, nil
}

func (m *Manager) failLogin(ctx context.Context, gen uint64, start time.Time, err error) error {
	m.metrics.Inc(MetricLoginFailure)
	m.metrics.Observe(MetricLoginLatency, time.Since(start))
	m.emitAudit(ctx, AuditEvent{EventType: AuditLoginFailure, Error: auditErrorCode(err)})
	m.logger.Info("authclient: login failed", "error", err)
	m.invalidateIfCurrent(ctx, gen, ReasonLoginFailed)
	return err
}

func mapLoginFailure(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureRejected:
		return ErrCredentials
	case flows.LoginFailureUnsupportedGrant:
		return fmt.Errorf("%w: %v", ErrUnsupportedGrant, res.Err)
	default:
		return fmt.Errorf("%w: %v", ErrTransport, res.Err)
	}
}

// Logout invalidates the session and then tells the remote service, using the
// tokens held before invalidation. Notification failures are logged only.
func (m *Manager) Logout(ctx context.Context) {
	if m == nil {
		return
	}

	held, err := m.tokens.Triple(ctx)
	if err != nil {
		m.logger.Warn("authclient: reading tokens for logout notification failed", "error", err)
	}

	m.Invalidate(ctx, ReasonLogout)
	m.metrics.Inc(MetricLogout)
	m.emitAudit(ctx, AuditEvent{EventType: AuditLogout, Reason: ReasonLogout, Success: true})

	res := flows.RunLogoutNotify(context.WithoutCancel(ctx), remote.LogoutRequest{
		IDToken:      held.IDToken,
		AccessToken:  held.AccessToken,
		RefreshToken: held.RefreshToken,
		ClientID:     m.config.ClientID,
	}, m.flowDeps.Logout)
	if res.Err != nil {
		err := fmt.Errorf("%w: %v", ErrLogoutNotify, res.Err)
		m.metrics.Inc(MetricLogoutNotifyFailure)
		m.emitAudit(ctx, AuditEvent{EventType: AuditLogoutNotifyFailure, Error: auditErrorCode(err)})
		m.logger.Warn("authclient: logout notification failed", "attempts", res.Attempts, "error", err)
	}
}

// GetAccessToken returns a usable access token, refreshing it when needed. An
// empty string means the session is gone.
func (m *Manager) GetAccessToken(ctx context.Context) string {
	token, _ := m.AccessToken(ctx)
	return token
}

// AccessToken is [Manager.GetAccessToken] with the classified failure:
// [ErrNotAuthenticated], [ErrRefreshFailed] (wrapped in [ErrTokenInvalid] when
// the stored access token was rejected), [ErrTransport] or
// [ErrSessionSuperseded]. When ctx ends first, ctx.Err() is returned and the
// session is left alone: a shared refresh keeps running for the other callers.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if m == nil {
		return "", ErrManagerNotReady
	}

	m.mu.Lock()
	sess := m.session
	gen := m.generation
	m.mu.Unlock()

	if !sess.Authenticated() {
		reason := sess.LogoutReason
		if sess.Phase != PhaseUnauthenticated {
			reason = ReasonAccessTokenError
		}
		m.Invalidate(ctx, reason)
		return "", ErrNotAuthenticated
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, present, valid := m.storedAccessToken(ctx)
	if valid {
		m.metrics.Inc(MetricAccessTokenReused)
		return token, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	user := *sess.User
	flight := m.refresh.DoChan(refreshFlightKey, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.Refresh.Timeout)
		defer cancel()
		return m.runRefresh(rctx, gen, user)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-flight:
		if res.Shared {
			m.metrics.Inc(MetricRefreshShared)
		}
		if res.Err != nil {
			if present && errors.Is(res.Err, ErrRefreshFailed) {
				return "", fmt.Errorf("%w: %w", ErrTokenInvalid, res.Err)
			}
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// storedAccessToken reads the access slot. present reports a stored token,
// valid that it also passed validation.
func (m *Manager) storedAccessToken(ctx context.Context) (token string, present, valid bool) {
	token, ok, err := m.tokens.Get(ctx, store.FieldAccessToken)
	if err != nil {
		m.logger.Warn("authclient: reading access token failed", "error", err)
		return "", false, false
	}
	if !ok {
		return "", false, false
	}
	if _, ok := flows.ValidateToken(ctx, m.validator, token); !ok {
		return token, true, false
	}
	return token, true, true
}

// runRefresh runs on a context detached from the callers; only the configured
// refresh timeout cancels it.
func (m *Manager) runRefresh(ctx context.Context, gen uint64, user User) (string, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.currentGeneration() != gen {
		return "", ErrSessionSuperseded
	}

	// A refresh that finished while this flight waited on opMu already rotated the pair.
	if token, _, valid := m.storedAccessToken(ctx); valid {
		return token, nil
	}

	refreshToken, _, err := m.tokens.Get(ctx, store.FieldRefreshToken)
	if err != nil {
		return "", m.failRefresh(ctx, gen, user, fmt.Errorf("%w: %v", ErrTransport, err))
	}
	nonce, _, err := m.tokens.Get(ctx, store.FieldNonce)
	if err != nil {
		return "", m.failRefresh(ctx, gen, user, fmt.Errorf("%w: %v", ErrTransport, err))
	}

	start := time.Now()
	res := flows.RunRefresh(ctx, flows.RefreshInput{
		ClientID:     m.config.ClientID,
		UserID:       user.UserID,
		Nonce:        nonce,
		RefreshToken: refreshToken,
	}, m.flowDeps.Refresh)
	m.metrics.Observe(MetricRefreshLatency, time.Since(start))

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureTransport:
		return "", m.failRefresh(ctx, gen, user, fmt.Errorf("%w: %w: %v", ErrRefreshFailed, ErrTransport, res.Err))
	default:
		return "", m.failRefresh(ctx, gen, user, fmt.Errorf("%w: %v", ErrRefreshFailed, res.Err))
	}

	err = m.writeTokens(ctx, gen, func(ctx context.Context) error {
		return m.tokens.SetPair(ctx, res.AccessToken, res.RefreshToken)
	})
	if errors.Is(err, ErrSessionSuperseded) {
		return "", err
	}
	if err != nil {
		return "", m.failRefresh(ctx, gen, user, err)
	}
	if m.currentGeneration() != gen {
		return "", ErrSessionSuperseded
	}

	m.metrics.Inc(MetricRefreshSuccess)
	m.emitAudit(ctx, AuditEvent{EventType: AuditRefreshSuccess, UserID: user.UserID, Success: true})
	return res.AccessToken, nil
}

func (m *Manager) failRefresh(ctx context.Context, gen uint64, user User, err error) error {
	m.metrics.Inc(MetricRefreshFailure)
	m.emitAudit(ctx, AuditEvent{EventType: AuditRefreshFailure, UserID: user.UserID, Error: auditErrorCode(err)})
	m.logger.Info("authclient: refresh failed", "error", err)
	m.invalidateIfCurrent(ctx, gen, ReasonAccessTokenError)
	return err
}

// IDToken returns the persisted identity token.
func (m *Manager) IDToken(ctx context.Context) (string, bool) {
	if m == nil {
		return "", false
	}
	token, ok, err := m.tokens.Get(ctx, store.FieldIDToken)
	if err != nil {
		m.logger.Warn("authclient: reading identity token failed", "error", err)
		return "", false
	}
	return token, ok
}

// Invalidate ends the session with reason and removes every persisted token and
// the nonce. It is idempotent and safe from any state.
func (m *Manager) Invalidate(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.setStateLocked(unauthenticatedSession(reason))
	m.mu.Unlock()

	m.afterInvalidate(ctx, gen, reason)
}

// invalidateIfCurrent invalidates only when no newer transition happened since
// gen. Otherwise the newer transition owns the store and nothing is touched.
func (m *Manager) invalidateIfCurrent(ctx context.Context, gen uint64, reason string) {
	m.mu.Lock()
	current := m.generation == gen
	if current {
		m.generation++
		gen = m.generation
		m.setStateLocked(unauthenticatedSession(reason))
	}
	m.mu.Unlock()

	if current {
		m.afterInvalidate(ctx, gen, reason)
	}
}

func (m *Manager) afterInvalidate(ctx context.Context, gen uint64, reason string) {
	m.clearStore(ctx, gen)
	m.metrics.Inc(MetricSessionInvalidated)
	m.emitAudit(ctx, AuditEvent{EventType: AuditSessionInvalidated, Reason: reason, Success: true})
}

// clearStore removes every slot unless a transition newer than gen started. A
// write that passed its generation check before gen existed is ordered before
// this clear by storeMu and is removed with the rest.
func (m *Manager) clearStore(ctx context.Context, gen uint64) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	if m.currentGeneration() != gen {
		return
	}
	if err := m.tokens.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("authclient: clearing token store failed", "error", err)
	}
}

// writeTokens runs write only while gen is current. Store errors are wrapped
// in ErrTransport.
func (m *Manager) writeTokens(ctx context.Context, gen uint64, write func(context.Context) error) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	if m.currentGeneration() != gen {
		return ErrSessionSuperseded
	}
	if err := write(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (m *Manager) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *Manager) setStateLocked(s Session) {
	m.session = s
	m.subs.publish(s)
}

// MetricsSnapshot returns a copy of the Manager's counters and histograms.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return m.metrics.Snapshot()
}

// AuditDropped reports how many audit events never reached the sink: dropped on
// a full buffer, left over when Close timed out, or emitted after Close.
func (m *Manager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}

// Close flushes queued audit events, waiting at most Audit.FlushTimeout, and
// closes every subscription. Login is refused afterwards; other operations keep
// working but their audit events are only counted in [Manager.AuditDropped].
func (m *Manager) Close() {
	if m == nil || !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.audit.Close()
	m.subs.close()
}

func (m *Manager) emitAudit(ctx context.Context, ev AuditEvent) {
	if m.audit == nil {
		return
	}
	ev.ClientID = m.config.ClientID
	m.audit.Emit(ctx, ev)
}

// auditErrorCode maps a classified error to a stable code so audit records never
// carry remote error text.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentials):
		return "credentials_rejected"
	case errors.Is(err, ErrUnsupportedGrant):
		return "unsupported_grant"
	case errors.Is(err, ErrSessionSuperseded):
		return "session_superseded"
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrLogoutNotify):
		return "logout_notify_failed"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}
