package authflow

import (
	"context"
	"time"

	"github.com/eventlyze/authflow/internal/flows"
)

// Refresh verifies a refresh token and mints a new access token for the same
// subject. The principal is re-read so a disabled account or a logged-out
// token stops working before the refresh token expires. The refresh token
// itself is not rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	res, err := flows.RunRefresh(ctx, refreshToken, e.refreshFlowDeps())
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		UserID:      res.UserID,
		AccessToken: res.AccessToken,
	}, nil
}

// Logout revokes a refresh token until its natural expiry. Tokens that do
// not verify are already unusable, so Logout returns nil for them.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	return flows.RunLogout(ctx, refreshToken, e.logoutFlowDeps())
}

func (e *Engine) refreshFlowDeps() flows.RefreshDeps {
	if e == nil || e.userProvider == nil || e.refreshTokens == nil {
		return flows.RefreshDeps{Errors: flows.RefreshErrors{EngineNotReady: ErrEngineNotReady}}
	}

	deps := flows.RefreshDeps{
		ParseRefresh:       e.parseRefresh,
		IsTokenExpired:     isTokenExpired,
		GetUserByID:        e.getUserByID,
		IsNotFound:         isNotFound,
		AccountStatusError: flowAccountStatusError,
		IssueAccess:        e.issueAccess,
		Hooks:              e.flowHooks(),
		Metrics: flows.RefreshMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
			RefreshRevoked: int(MetricRefreshRevoked),
		},
		Events: flows.RefreshEvents{
			RefreshSuccess: auditEventRefreshSuccess,
			RefreshFailure: auditEventRefreshFailure,
		},
		Errors: flows.RefreshErrors{
			EngineNotReady:   ErrEngineNotReady,
			RefreshInvalid:   ErrRefreshInvalid,
			RefreshExpired:   ErrRefreshExpired,
			RefreshRevoked:   ErrRefreshRevoked,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}
	if e.refreshDenylist != nil {
		deps.IsRevoked = e.refreshDenylist.Contains
	}

	return deps
}

func (e *Engine) logoutFlowDeps() flows.LogoutDeps {
	if e == nil || e.refreshTokens == nil || e.refreshDenylist == nil {
		return flows.LogoutDeps{Errors: flows.LogoutErrors{EngineNotReady: ErrEngineNotReady}}
	}

	return flows.LogoutDeps{
		Now:          e.now,
		ParseRefresh: e.parseRefresh,
		RevokeRefresh: func(ctx context.Context, tokenID string, ttl time.Duration) error {
			return mapLedgerError(e.refreshDenylist.Mark(ctx, tokenID, e.ledgerTTL(ttl)))
		},
		Hooks:   e.flowHooks(),
		Metrics: flows.LogoutMetrics{Logout: int(MetricLogout)},
		Events:  flows.LogoutEvents{Logout: auditEventLogout},
		Errors:  flows.LogoutErrors{EngineNotReady: ErrEngineNotReady},
	}
}
