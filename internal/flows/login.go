package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	UserID             string
	AccessToken        string
	RefreshToken       string
	RefreshExpiresAt   time.Time
	NeedPasswordChange bool
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	PasswordUpgraded int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidInput       error
	InvalidCredentials error
	LoginRateLimited   error
	StoreUnavailable   error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool
	// DummyHash is verified against when the identifier is unknown so both
	// failure paths cost one hash verification.
	DummyHash string

	ClientIPFromContext func(context.Context) string
	AccountStatusError  func(uint8) error

	CheckLoginRate     func(ctx context.Context, identifier, ip string) error
	IncrementLoginRate func(ctx context.Context, identifier, ip string) error
	ResetLoginRate     func(ctx context.Context, identifier string) error

	GetUserByIdentifier func(context.Context, string) (UserRecord, error)
	IsNotFound          func(error) bool
	UpdatePasswordHash  func(ctx context.Context, userID, hash string) error

	VerifyPassword       func(password, hash string) (bool, error)
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)

	IssueAccess  func(userID, role string) (IssuedToken, error)
	IssueRefresh func(userID string) (IssuedToken, error)

	Hooks
	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials and issues an access and refresh token pair.
//
// Unknown identifiers and wrong passwords fail with the same InvalidCredentials
// error; only the audit reason differs. Account status is checked after the
// password so a disabled account is not revealed to a caller without it.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) (*LoginResult, error) {
	deps.Hooks.normalize()
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.AccountStatusError == nil ||
		deps.GetUserByIdentifier == nil ||
		deps.VerifyPassword == nil ||
		deps.IssueAccess == nil ||
		deps.IssueRefresh == nil {
		return nil, deps.Errors.EngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", deps.Errors.InvalidInput, reasonMeta("empty_input"))
		return nil, deps.Errors.InvalidInput
	}

	ip := deps.ClientIPFromContext(ctx)
	identifierMeta := func() map[string]string {
		return map[string]string{"identifier": identifier}
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, identifier, ip); err != nil {
			if errors.Is(err, deps.Errors.LoginRateLimited) {
				deps.MetricInc(deps.Metrics.LoginRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", err, identifierMeta)
			}
			return nil, err
		}
	}

	fail := func(userID, reason string) error {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, identifier, ip); err != nil {
				if errors.Is(err, deps.Errors.LoginRateLimited) {
					deps.MetricInc(deps.Metrics.LoginRateLimited)
					deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, userID, err, identifierMeta)
				}
				return err
			}
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     reason,
			}
		})
		return deps.Errors.InvalidCredentials
	}

	user, err := deps.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		return nil, fail("", "user_not_found")
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		deps.Warn(ctx, "stored password hash unusable", "user_id", user.UserID, "error", err)
	}
	if err != nil || !ok {
		return nil, fail(user.UserID, "password_mismatch")
	}

	if statusErr := deps.AccountStatusError(user.Status); statusErr != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, statusErr, reasonMeta("account_status"))
		return nil, statusErr
	}

	access, err := deps.IssueAccess(user.UserID, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := deps.IssueRefresh(user.UserID)
	if err != nil {
		return nil, err
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, identifier); err != nil {
			deps.Warn(ctx, "login limiter reset failed", "error", err)
		}
	}

	if deps.PasswordUpgradeOnLogin && deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		upgradePassword(ctx, user.UserID, password, user.PasswordHash, deps)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.UserID, nil, nil)

	return &LoginResult{
		UserID:             user.UserID,
		AccessToken:        access.Value,
		RefreshToken:       refresh.Value,
		RefreshExpiresAt:   refresh.ExpiresAt,
		NeedPasswordChange: user.NeedPasswordChange,
	}, nil
}

// upgradePassword re-hashes with current parameters. Failures only warn: the
// login already succeeded against the old hash.
func upgradePassword(ctx context.Context, userID, password, storedHash string, deps LoginDeps) {
	needsUpgrade, err := deps.PasswordNeedsUpgrade(storedHash)
	if err != nil || !needsUpgrade {
		return
	}

	upgraded, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn(ctx, "password hash upgrade generation failed", "user_id", userID)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, userID, upgraded); err != nil {
		deps.Warn(ctx, "password hash upgrade update failed", "user_id", userID, "error", err)
		return
	}
	deps.MetricInc(deps.Metrics.PasswordUpgraded)
}
