package authclient

import (
	"errors"
	"strings"
	"time"

	"github.com/versini-org/auth-client/jwt"
	"github.com/versini-org/auth-client/store"
)

// Config defines the Manager configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	// ClientID scopes storage keys and every remote call.
	ClientID string
	// SessionExpiration is the requested token lifetime hint passed to the exchange call.
	SessionExpiration string

	Store   StoreConfig
	JWT     JWTConfig
	Refresh RefreshConfig
	Logout  LogoutConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls token slot naming.
type StoreConfig struct {
	// Prefix namespaces every key as "<Prefix>::<ClientID>::<field>".
	Prefix string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the built-in token validator. It is ignored when a
// validator is supplied through [Builder.WithValidator].
type JWTConfig struct {
	SigningMethod string // "ed25519" (default) or "hs256"
	// VerifyKey is the Ed25519 public key (raw or PEM) or the HS256 secret.
	VerifyKey []byte
	// VerifyKeys maps a "kid" header to a key for rotation.
	VerifyKeys map[string][]byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

func (c JWTConfig) configured() bool {
	return len(c.VerifyKey) > 0 || len(c.VerifyKeys) > 0
}

func (c JWTConfig) verifierConfig() jwt.Config {
	return jwt.Config{
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		Key:           cloneBytes(c.VerifyKey),
		VerifyKeys:    cloneKeyMap(c.VerifyKeys),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
	}
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig bounds the shared token refresh. The refresh runs detached from
// any single caller, so Timeout is what stops a hung remote service.
type RefreshConfig struct {
	Timeout time.Duration
}

/*
====================================
LOGOUT CONFIG
====================================
*/

// LogoutConfig bounds the best-effort logout notification.
type LogoutConfig struct {
	NotifyTimeout   time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
}

// AuditConfig defines audit dispatch buffering.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// FlushTimeout bounds how long [Manager.Close] waits for queued events.
	FlushTimeout time.Duration
}

// MetricsConfig defines which in-process metrics are recorded.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Prefix: store.DefaultPrefix,
		},
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			Timeout: 15 * time.Second,
		},
		Logout: LogoutConfig{
			NotifyTimeout:   5 * time.Second,
			MaxAttempts:     3,
			InitialInterval: 200 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   256,
			DropIfFull:   true,
			FlushTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// DefaultConfig returns the configuration [New] starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.VerifyKey = cloneBytes(cfg.JWT.VerifyKey)
	out.JWT.VerifyKeys = cloneKeyMap(cfg.JWT.VerifyKeys)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneKeyMap(m map[string][]byte) map[string][]byte {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = cloneBytes(v)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return errors.New("ClientID must be set")
	}
	if strings.Contains(c.ClientID, "::") {
		return errors.New("ClientID must not contain \"::\"")
	}
	if strings.Contains(c.Store.Prefix, "::") {
		return errors.New("Store Prefix must not contain \"::\"")
	}

	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.VerifyKey) > 0 && len(c.JWT.VerifyKey) < 32 {
		return errors.New("hs256 VerifyKey must be at least 32 bytes")
	}

	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}

	if c.Logout.NotifyTimeout < 0 {
		return errors.New("Logout NotifyTimeout must be >= 0")
	}
	if c.Logout.MaxAttempts < 1 || c.Logout.MaxAttempts > 10 {
		return errors.New("Logout MaxAttempts must be between 1 and 10")
	}
	if c.Logout.InitialInterval < 0 {
		return errors.New("Logout InitialInterval must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.FlushTimeout < 0 {
		return errors.New("Audit FlushTimeout must be >= 0")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
