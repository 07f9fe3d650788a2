package authflow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/eventlyze/authflow/internal/audit"
	"github.com/eventlyze/authflow/internal/rate"
	"github.com/eventlyze/authflow/internal/stores"
	"github.com/eventlyze/authflow/jwt"
	"github.com/eventlyze/authflow/password"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	refreshDenylistPrefix = "arv"
	resetLedgerPrefix     = "ars"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	notifier     Notifier
	auditSink    AuditSink
	logger       *slog.Logger
	clock        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithNotifier sets the channel that delivers reset tokens.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit destination. It only takes effect when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
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

// WithClock overrides the time source for token issuance, verification and
// ledger lifetimes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and returns a ready [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.JWT.SigningMethod = strings.ToLower(strings.TrimSpace(cfg.JWT.SigningMethod))

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:       cfg,
		clock:        clock,
		logger:       logger,
		userProvider: b.userProvider,
		notifier:     b.notifier,
	}

	// -------- TOKEN MANAGERS --------
	var err error
	engine.accessTokens, err = newTokenManager(cfg.JWT, jwt.KindAccess, cfg.JWT.Access, cfg.JWT.AccessTTL, clock)
	if err != nil {
		return nil, err
	}
	engine.refreshTokens, err = newTokenManager(cfg.JWT, jwt.KindRefresh, cfg.JWT.Refresh, cfg.JWT.RefreshTTL, clock)
	if err != nil {
		return nil, err
	}
	engine.resetTokens, err = newTokenManager(cfg.JWT, jwt.KindReset, cfg.JWT.Reset, cfg.JWT.ResetTTL, clock)
	if err != nil {
		return nil, err
	}

	// -------- PASSWORD HASHER --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	// Unknown identifiers are verified against this hash so both login
	// failure paths cost the same.
	seed := strings.Repeat(uuid.NewString(), cfg.Password.MinLength/36+1)
	dummy, err := ph.Hash(seed[:cfg.Password.MinLength])
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	engine.dummyHash = dummy

	// -------- REDIS STORES --------
	engine.redis = b.redis
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:       cfg.RateLimit.EnableIPThrottle,
		MaxLoginAttempts:       cfg.RateLimit.MaxLoginAttempts,
		LoginCooldownDuration:  cfg.RateLimit.LoginCooldownDuration,
		MaxForgotAttempts:      cfg.RateLimit.MaxForgotAttempts,
		ForgotCooldownDuration: cfg.RateLimit.ForgotCooldownDuration,
	})
	engine.refreshDenylist = stores.NewTokenLedger(b.redis, refreshDenylistPrefix)
	engine.resetLedger = stores.NewTokenLedger(b.redis, resetLedgerPrefix)

	// -------- OBSERVABILITY --------
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}

func newTokenManager(cfg JWTConfig, kind jwt.Kind, key SigningKey, ttl time.Duration, now func() time.Time) (*jwt.Manager, error) {
	m, err := jwt.NewManager(jwt.Config{
		Kind:          kind,
		TTL:           ttl,
		SigningMethod: jwt.SigningMethod(cfg.SigningMethod),
		PrivateKey:    cloneBytes(key.Secret),
		PublicKey:     cloneBytes(key.PublicKey),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("%s token manager: %w", kind, err)
	}
	return m, nil
}
