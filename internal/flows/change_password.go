package flows

import (
	"context"
	"fmt"
)

// ChangePasswordMetrics carries metric IDs needed by the change-password flow.
type ChangePasswordMetrics struct {
	PasswordChangeSuccess int
	PasswordChangeFailure int
}

// ChangePasswordEvents carries audit event names used by the change-password flow.
type ChangePasswordEvents struct {
	PasswordChange string
}

// ChangePasswordErrors carries host-level sentinel errors used by the change-password flow.
type ChangePasswordErrors struct {
	EngineNotReady     error
	Unauthorized       error
	PasswordPolicy     error
	InvalidCredentials error
	PasswordReuse      error
	StoreUnavailable   error
}

// ChangePasswordDeps captures change-password dependencies.
type ChangePasswordDeps struct {
	GetUserByID        func(context.Context, string) (UserRecord, error)
	IsNotFound         func(error) bool
	AccountStatusError func(uint8) error
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error

	VerifyPassword func(password, hash string) (bool, error)
	HashPassword   func(string) (string, error)

	Hooks
	Metrics ChangePasswordMetrics
	Events  ChangePasswordEvents
	Errors  ChangePasswordErrors
}

// RunChangePassword replaces the password of an already authenticated user
// after re-verifying oldPassword. The stored hash is untouched on any failure.
func RunChangePassword(ctx context.Context, userID, oldPassword, newPassword string, deps ChangePasswordDeps) error {
	deps.Hooks.normalize()
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.AccountStatusError == nil {
		deps.AccountStatusError = func(uint8) error { return nil }
	}
	if deps.GetUserByID == nil || deps.UpdatePasswordHash == nil || deps.VerifyPassword == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) error {
		deps.MetricInc(deps.Metrics.PasswordChangeFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordChange, false, userID, err, reasonMeta(reason))
		return err
	}

	if userID == "" {
		return fail(deps.Errors.Unauthorized, "missing_principal")
	}
	if oldPassword == "" || newPassword == "" {
		return fail(deps.Errors.PasswordPolicy, "empty_input")
	}

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if deps.IsNotFound(err) {
			return fail(deps.Errors.Unauthorized, "user_not_found")
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if statusErr := deps.AccountStatusError(user.Status); statusErr != nil {
		return fail(statusErr, "account_status")
	}

	ok, err := deps.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil {
		deps.Warn(ctx, "stored password hash unusable", "user_id", user.UserID, "error", err)
	}
	if err != nil || !ok {
		return fail(deps.Errors.InvalidCredentials, "old_password_mismatch")
	}

	if newPassword == oldPassword {
		return fail(deps.Errors.PasswordReuse, "password_reuse")
	}

	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		return fail(err, "hash_failed")
	}

	if err := deps.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
		deps.MetricInc(deps.Metrics.PasswordChangeFailure)
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.PasswordChangeSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordChange, true, user.UserID, nil, nil)
	return nil
}
