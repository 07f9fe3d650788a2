package authflow

import (
	"context"

	"github.com/eventlyze/authflow/internal/flows"
)

// Login verifies identifier and password and issues an access and refresh
// token pair.
//
// An unknown identifier and a wrong password both return
// [ErrInvalidCredentials]. A disabled or locked account is only reported
// after the password verified. Exceeding the failure budget returns
// [ErrLoginRateLimited].
func (e *Engine) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	res, err := flows.RunLogin(ctx, identifier, password, e.loginFlowDeps())
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		UserID:             res.UserID,
		AccessToken:        res.AccessToken,
		RefreshToken:       res.RefreshToken,
		RefreshExpiresAt:   res.RefreshExpiresAt,
		NeedPasswordChange: res.NeedPasswordChange,
	}, nil
}

func (e *Engine) loginFlowDeps() flows.LoginDeps {
	if e == nil || e.userProvider == nil {
		return flows.LoginDeps{Errors: flows.LoginErrors{EngineNotReady: ErrEngineNotReady}}
	}

	deps := flows.LoginDeps{
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		DummyHash:              e.dummyHash,
		ClientIPFromContext:    clientIPFromContext,
		AccountStatusError:     flowAccountStatusError,
		GetUserByIdentifier:    e.getUserByIdentifier,
		IsNotFound:             isNotFound,
		UpdatePasswordHash:     e.userProvider.UpdatePasswordHash,
		IssueAccess:            e.issueAccess,
		IssueRefresh:           e.issueRefresh,
		Hooks:                  e.flowHooks(),
		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			PasswordUpgraded: int(MetricPasswordUpgraded),
		},
		Events: flows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginRateLimited: auditEventLoginRateLimited,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidInput:       ErrInvalidInput,
			InvalidCredentials: ErrInvalidCredentials,
			LoginRateLimited:   ErrLoginRateLimited,
			StoreUnavailable:   ErrStoreUnavailable,
		},
	}

	if e.passwordHash != nil {
		deps.VerifyPassword = e.passwordHash.Verify
		deps.PasswordNeedsUpgrade = e.passwordHash.NeedsUpgrade
		deps.HashPassword = e.hashPassword
	}
	if e.rateLimiter != nil {
		deps.CheckLoginRate = func(ctx context.Context, identifier, ip string) error {
			return mapRateError(e.rateLimiter.CheckLogin(ctx, identifier, ip), ErrLoginRateLimited)
		}
		deps.IncrementLoginRate = func(ctx context.Context, identifier, ip string) error {
			return mapRateError(e.rateLimiter.IncrementLogin(ctx, identifier, ip), ErrLoginRateLimited)
		}
		deps.ResetLoginRate = e.rateLimiter.ResetLogin
	}

	return deps
}
