package flows

import (
	"context"
	"fmt"
)

// RefreshResult is the flow-local refresh response shape.
type RefreshResult struct {
	UserID      string
	AccessToken string
}

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
	RefreshRevoked int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	RefreshSuccess string
	RefreshFailure string
}

// RefreshErrors carries host-level sentinel errors used by the refresh flow.
type RefreshErrors struct {
	EngineNotReady   error
	RefreshInvalid   error
	RefreshExpired   error
	RefreshRevoked   error
	StoreUnavailable error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh   func(string) (TokenClaims, error)
	IsTokenExpired func(error) bool
	// IsRevoked reports whether the refresh token id was revoked by logout.
	// Nil disables the check.
	IsRevoked func(ctx context.Context, tokenID string) (bool, error)

	GetUserByID        func(context.Context, string) (UserRecord, error)
	IsNotFound         func(error) bool
	AccountStatusError func(uint8) error

	IssueAccess func(userID, role string) (IssuedToken, error)

	Hooks
	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh verifies a refresh token, re-checks the principal it names and
// issues a new access token. The refresh token itself is not rotated.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*RefreshResult, error) {
	deps.Hooks.normalize()
	if deps.IsTokenExpired == nil {
		deps.IsTokenExpired = func(error) bool { return false }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.ParseRefresh == nil || deps.GetUserByID == nil || deps.AccountStatusError == nil || deps.IssueAccess == nil {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func(userID string, err error, reason string) error {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, userID, err, reasonMeta(reason))
		return err
	}

	if refreshToken == "" {
		return nil, fail("", deps.Errors.RefreshInvalid, "missing_token")
	}

	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		if deps.IsTokenExpired(err) {
			return nil, fail("", deps.Errors.RefreshExpired, "expired")
		}
		return nil, fail("", deps.Errors.RefreshInvalid, "invalid")
	}

	if deps.IsRevoked != nil {
		revoked, err := deps.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		if revoked {
			deps.MetricInc(deps.Metrics.RefreshRevoked)
			return nil, fail(claims.Subject, deps.Errors.RefreshRevoked, "revoked")
		}
	}

	user, err := deps.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if deps.IsNotFound(err) {
			return nil, fail(claims.Subject, deps.Errors.RefreshInvalid, "user_not_found")
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	if statusErr := deps.AccountStatusError(user.Status); statusErr != nil {
		return nil, fail(user.UserID, statusErr, "account_status")
	}

	access, err := deps.IssueAccess(user.UserID, user.Role)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.RefreshSuccess, true, user.UserID, nil, nil)

	return &RefreshResult{
		UserID:      user.UserID,
		AccessToken: access.Value,
	}, nil
}
