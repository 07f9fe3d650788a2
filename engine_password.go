package authflow

import (
	"context"

	"github.com/eventlyze/authflow/internal/flows"
)

// ChangePassword replaces the password of an authenticated user after
// re-verifying oldPassword. userID must come from a verified access token,
// normally [Principal.UserID].
//
// A wrong oldPassword returns [ErrInvalidCredentials] and leaves the stored
// hash unchanged. Reusing the current password returns [ErrPasswordReuse].
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	return flows.RunChangePassword(ctx, userID, oldPassword, newPassword, e.changePasswordFlowDeps())
}

func (e *Engine) changePasswordFlowDeps() flows.ChangePasswordDeps {
	if e == nil || e.userProvider == nil || e.passwordHash == nil {
		return flows.ChangePasswordDeps{Errors: flows.ChangePasswordErrors{EngineNotReady: ErrEngineNotReady}}
	}

	return flows.ChangePasswordDeps{
		GetUserByID:        e.getUserByID,
		IsNotFound:         isNotFound,
		AccountStatusError: flowAccountStatusError,
		UpdatePasswordHash: e.userProvider.UpdatePasswordHash,
		VerifyPassword:     e.passwordHash.Verify,
		HashPassword:       e.hashPassword,
		Hooks:              e.flowHooks(),
		Metrics: flows.ChangePasswordMetrics{
			PasswordChangeSuccess: int(MetricPasswordChangeSuccess),
			PasswordChangeFailure: int(MetricPasswordChangeFailure),
		},
		Events: flows.ChangePasswordEvents{
			PasswordChange: auditEventPasswordChange,
		},
		Errors: flows.ChangePasswordErrors{
			EngineNotReady:     ErrEngineNotReady,
			Unauthorized:       ErrUnauthorized,
			PasswordPolicy:     ErrPasswordPolicy,
			InvalidCredentials: ErrInvalidCredentials,
			PasswordReuse:      ErrPasswordReuse,
			StoreUnavailable:   ErrStoreUnavailable,
		},
	}
}
