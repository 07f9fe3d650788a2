package flows

import (
	"context"
	"time"
)

// LogoutMetrics carries metric IDs needed by the logout flow.
type LogoutMetrics struct {
	Logout int
}

// LogoutEvents carries audit event names used by the logout flow.
type LogoutEvents struct {
	Logout string
}

// LogoutErrors carries host-level sentinel errors used by the logout flow.
type LogoutErrors struct {
	EngineNotReady error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now           func() time.Time
	ParseRefresh  func(string) (TokenClaims, error)
	RevokeRefresh func(ctx context.Context, tokenID string, ttl time.Duration) error

	Hooks
	Metrics LogoutMetrics
	Events  LogoutEvents
	Errors  LogoutErrors
}

// RunLogout revokes a refresh token until its natural expiry. Missing, invalid
// and expired tokens are already unusable, so they succeed without a write.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) error {
	deps.Hooks.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ParseRefresh == nil || deps.RevokeRefresh == nil {
		return deps.Errors.EngineNotReady
	}

	if refreshToken == "" {
		return nil
	}
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return nil
	}

	if err := deps.RevokeRefresh(ctx, claims.ID, claims.ExpiresAt.Sub(deps.Now())); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, deps.Events.Logout, true, claims.Subject, nil, nil)
	return nil
}
