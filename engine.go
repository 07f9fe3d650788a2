package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	internalaudit "github.com/eventlyze/authflow/internal/audit"
	"github.com/eventlyze/authflow/internal/flows"
	"github.com/eventlyze/authflow/internal/rate"
	"github.com/eventlyze/authflow/internal/stores"
	"github.com/eventlyze/authflow/jwt"
	"github.com/eventlyze/authflow/password"
	"github.com/redis/go-redis/v9"
)

// Engine runs the authentication flows. It is immutable after
// [Builder.Build] and safe for concurrent use.
type Engine struct {
	config Config
	clock  func() time.Time
	logger *slog.Logger

	accessTokens  *jwt.Manager
	refreshTokens *jwt.Manager
	resetTokens   *jwt.Manager

	passwordHash *password.Argon2
	dummyHash    string

	redis           redis.UniversalClient
	rateLimiter     *rate.Limiter
	refreshDenylist *stores.TokenLedger
	resetLedger     *stores.TokenLedger

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	userProvider UserProvider
	notifier     Notifier
}

// Close drains pending audit events. The Redis client is owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events never reached the sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Health pings Redis and reports its latency.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.redis == nil {
		return HealthStatus{}
	}
	start := time.Now()
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return HealthStatus{RedisAvailable: false}
	}
	return HealthStatus{
		RedisAvailable: true,
		RedisLatency:   time.Since(start),
	}
}

// GetLoginAttempts returns the failed-login count in the current window.
func (e *Engine) GetLoginAttempts(ctx context.Context, identifier string) (int, error) {
	if e == nil || e.rateLimiter == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.rateLimiter.GetLoginAttempts(ctx, identifier)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

/*
====================================
FLOW ADAPTERS
====================================
*/

// flowHooks routes flow metrics, audit and warnings into the engine.
func (e *Engine) flowHooks() flows.Hooks {
	return flows.Hooks{
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
	}
}

func toFlowUser(user UserRecord) flows.UserRecord {
	return flows.UserRecord{
		UserID:             user.UserID,
		Identifier:         user.Identifier,
		PasswordHash:       user.PasswordHash,
		Role:               user.Role,
		Status:             uint8(user.Status),
		NeedPasswordChange: user.NeedPasswordChange,
	}
}

func toFlowToken(t jwt.Token) flows.IssuedToken {
	return flows.IssuedToken{
		Value:     t.Value,
		ID:        t.ID,
		IssuedAt:  t.IssuedAt,
		ExpiresAt: t.ExpiresAt,
	}
}

func toFlowClaims(registered gojwt.RegisteredClaims, role string) flows.TokenClaims {
	return flows.TokenClaims{
		Subject:   registered.Subject,
		ID:        registered.ID,
		Role:      role,
		IssuedAt:  numericTime(registered.IssuedAt),
		ExpiresAt: numericTime(registered.ExpiresAt),
	}
}

func numericTime(d *gojwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

func (e *Engine) getUserByIdentifier(ctx context.Context, identifier string) (flows.UserRecord, error) {
	user, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return flows.UserRecord{}, err
	}
	return toFlowUser(user), nil
}

func (e *Engine) getUserByID(ctx context.Context, userID string) (flows.UserRecord, error) {
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return flows.UserRecord{}, err
	}
	return toFlowUser(user), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func isTokenExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func flowAccountStatusError(status uint8) error {
	return accountStatusToError(AccountStatus(status))
}

// hashPassword maps length-policy failures onto ErrPasswordPolicy.
func (e *Engine) hashPassword(pw string) (string, error) {
	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return "", err
	}
	return hash, nil
}

func (e *Engine) issueAccess(userID, role string) (flows.IssuedToken, error) {
	t, err := e.accessTokens.IssueAccess(userID, role)
	if err != nil {
		return flows.IssuedToken{}, err
	}
	return toFlowToken(t), nil
}

func (e *Engine) issueRefresh(userID string) (flows.IssuedToken, error) {
	t, err := e.refreshTokens.IssueRefresh(userID)
	if err != nil {
		return flows.IssuedToken{}, err
	}
	return toFlowToken(t), nil
}

func (e *Engine) issueReset(userID string) (flows.IssuedToken, error) {
	t, err := e.resetTokens.IssueReset(userID)
	if err != nil {
		return flows.IssuedToken{}, err
	}
	return toFlowToken(t), nil
}

func (e *Engine) parseAccess(token string) (flows.TokenClaims, error) {
	claims, err := e.accessTokens.ParseAccess(token)
	if err != nil {
		return flows.TokenClaims{}, err
	}
	return toFlowClaims(claims.RegisteredClaims, claims.Role), nil
}

func (e *Engine) parseRefresh(token string) (flows.TokenClaims, error) {
	claims, err := e.refreshTokens.ParseRefresh(token)
	if err != nil {
		return flows.TokenClaims{}, err
	}
	return toFlowClaims(claims.RegisteredClaims, ""), nil
}

func (e *Engine) parseReset(token string) (flows.TokenClaims, error) {
	claims, err := e.resetTokens.ParseReset(token)
	if err != nil {
		return flows.TokenClaims{}, err
	}
	return toFlowClaims(claims.RegisteredClaims, ""), nil
}

// ledgerTTL keeps a token id recorded for as long as the verifier would
// still accept the token, including leeway.
func (e *Engine) ledgerTTL(ttl time.Duration) time.Duration {
	return ttl + e.config.JWT.Leeway
}

func mapRateError(err, limited error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return limited
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func mapLedgerError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
