package flows

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/versini-org/auth-client/remote"
)

type LogoutService interface {
	NotifyLogout(ctx context.Context, req remote.LogoutRequest) error
}

// LogoutDeps captures logout notification dependencies.
type LogoutDeps struct {
	Service LogoutService

	// Timeout bounds the whole notification including retries.
	Timeout time.Duration

	// MaxAttempts includes the first call.
	MaxAttempts     uint
	InitialInterval time.Duration
}

// LogoutResult reports how the notification went. A non-nil Err never affects
// the local session, which is already torn down when this runs.
type LogoutResult struct {
	Skipped  bool
	Attempts int
	Err      error
}

// RunLogoutNotify tells the remote service which tokens were dropped. It is
// skipped when no token was held.
func RunLogoutNotify(ctx context.Context, req remote.LogoutRequest, deps LogoutDeps) LogoutResult {
	if req.IDToken == "" && req.AccessToken == "" && req.RefreshToken == "" {
		return LogoutResult{Skipped: true}
	}
	if deps.Service == nil {
		return LogoutResult{Skipped: true}
	}

	if deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.Timeout)
		defer cancel()
	}

	maxAttempts := deps.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	expBackoff := backoff.NewExponentialBackOff()
	if deps.InitialInterval > 0 {
		expBackoff.InitialInterval = deps.InitialInterval
		expBackoff.MaxInterval = 20 * deps.InitialInterval
		expBackoff.Reset()
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, deps.Service.NotifyLogout(ctx, req)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxAttempts),
	)
	return LogoutResult{Attempts: attempts, Err: err}
}
