package authclient

import (
	"errors"
	"log/slog"

	"github.com/versini-org/auth-client/internal"
	"github.com/versini-org/auth-client/internal/audit"
	"github.com/versini-org/auth-client/internal/flows"
	"github.com/versini-org/auth-client/jwt"
	"github.com/versini-org/auth-client/remote"
	"github.com/versini-org/auth-client/store"
)

// Builder assembles a [Manager].
//
// Builder instances are intended to be configured during initialization and
// used for a single Build.
type Builder struct {
	config Config

	backend   store.Backend
	service   remote.Service
	validator TokenValidator
	logger    *slog.Logger
	auditSink AuditSink

	newNonce func() (string, error)
	newPKCE  func() (PKCEPair, error)

	built bool
}

// New starts a Builder from [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the token slot backend. It is required.
func (b *Builder) WithStore(backend store.Backend) *Builder {
	b.backend = backend
	return b
}

// WithService sets the remote authentication service. It is required.
func (b *Builder) WithService(svc remote.Service) *Builder {
	b.service = svc
	return b
}

// WithValidator overrides the validator otherwise built from [JWTConfig].
func (b *Builder) WithValidator(v TokenValidator) *Builder {
	b.validator = v
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNonceGenerator replaces the random UUID nonce source.
func (b *Builder) WithNonceGenerator(fn func() (string, error)) *Builder {
	b.newNonce = fn
	return b
}

// WithPKCEGenerator replaces the random PKCE verifier source.
func (b *Builder) WithPKCEGenerator(fn func() (PKCEPair, error)) *Builder {
	b.newPKCE = fn
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Manager in the Loading phase.
// Call [Manager.Bootstrap] to restore a persisted session.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.backend == nil {
		return nil, errors.New("token store backend required")
	}
	if b.service == nil {
		return nil, errors.New("remote service required")
	}

	tokens, err := store.New(b.backend, cfg.Store.Prefix, cfg.ClientID)
	if err != nil {
		return nil, err
	}

	validator := b.validator
	if validator == nil {
		if !cfg.JWT.configured() {
			return nil, errors.New("token validator or JWT verify key required")
		}
		v, err := jwt.NewVerifier(cfg.JWT.verifierConfig())
		if err != nil {
			return nil, err
		}
		validator = v
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	newNonce := b.newNonce
	if newNonce == nil {
		newNonce = internal.NewNonce
	}
	newPKCE := b.newPKCE
	if newPKCE == nil {
		newPKCE = internal.NewPKCEPair
	}

	warn := func(msg string, args ...any) { logger.Warn(msg, args...) }

	m := &Manager{
		config:    cfg,
		tokens:    tokens,
		validator: validator,
		newNonce:  newNonce,
		logger:    logger,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:      cfg.Audit.Enabled,
			BufferSize:   cfg.Audit.BufferSize,
			DropIfFull:   cfg.Audit.DropIfFull,
			FlushTimeout: cfg.Audit.FlushTimeout,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		session: loadingSession(),
		subs:    newBroadcaster(),
		flowDeps: flows.Deps{
			Login: flows.LoginDeps{
				Service:     b.service,
				NewPKCEPair: newPKCE,
				Warn:        warn,
			},
			Refresh: flows.RefreshDeps{
				Service: b.service,
				Warn:    warn,
			},
			Logout: flows.LogoutDeps{
				Service:         b.service,
				Timeout:         cfg.Logout.NotifyTimeout,
				MaxAttempts:     uint(cfg.Logout.MaxAttempts),
				InitialInterval: cfg.Logout.InitialInterval,
			},
		},
	}

	b.built = true

	return m, nil
}
