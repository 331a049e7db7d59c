package authclient

import (
	"io"
	"log/slog"

	"github.com/versini-org/auth-client/internal/audit"
)

// AuditEvent is one session lifecycle record delivered to an [AuditSink].
type AuditEvent = audit.Event

// AuditSink receives audit events from the Manager's dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	SlogSink       = audit.SlogSink
)

// Audit event types.
const (
	AuditSessionRestored     = "session_restored"
	AuditSessionExpired      = "session_expired"
	AuditLoginSuccess        = "login_success"
	AuditLoginFailure        = "login_failure"
	AuditRefreshSuccess      = "refresh_success"
	AuditRefreshFailure      = "refresh_failure"
	AuditSessionInvalidated  = "session_invalidated"
	AuditLogout              = "logout"
	AuditLogoutNotifyFailure = "logout_notify_failure"
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}
