package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResetNotice is the flow-local payload handed to the notification channel.
type ResetNotice struct {
	UserID     string
	Identifier string
	Token      string
	ExpiresAt  time.Time
	Link       string
}

// PasswordResetMetrics carries metric IDs needed by the forgot and reset password flows.
type PasswordResetMetrics struct {
	PasswordResetRequest       int
	PasswordResetNotifyFailure int
	PasswordResetRateLimited   int
	PasswordResetSuccess       int
	PasswordResetFailure       int
	PasswordResetReplay        int
}

// PasswordResetEvents carries audit event names used by the forgot and reset password flows.
type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
	PasswordResetReplay  string
}

// PasswordResetErrors carries host-level sentinel errors used by the forgot and reset password flows.
type PasswordResetErrors struct {
	EngineNotReady   error
	InvalidInput     error
	ResetRateLimited error
	ResetInvalid     error
	ResetExpired     error
	ResetTokenUsed   error
	PasswordPolicy   error
	StoreUnavailable error
}

// ForgotPasswordDeps captures forgot-password dependencies.
type ForgotPasswordDeps struct {
	ClientIPFromContext func(context.Context) string
	CheckForgotRate     func(ctx context.Context, identifier, ip string) error

	GetUserByIdentifier func(context.Context, string) (UserRecord, error)
	IsNotFound          func(error) bool
	AccountStatusError  func(uint8) error

	IssueReset     func(userID string) (IssuedToken, error)
	BuildResetLink func(token string) string
	SendResetLink  func(context.Context, ResetNotice) error

	Hooks
	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunForgotPassword issues a reset token for an active principal and hands it
// to the notification channel.
//
// The outcome is uniform: unknown identifiers, inactive accounts and delivery
// failures all return nil. Only empty input, rate limiting, store outages and
// context cancellation surface, none of which depend on whether the
// identifier exists.
func RunForgotPassword(ctx context.Context, identifier string, deps ForgotPasswordDeps) error {
	deps.Hooks.normalize()
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.BuildResetLink == nil {
		deps.BuildResetLink = func(string) string { return "" }
	}
	if deps.GetUserByIdentifier == nil || deps.AccountStatusError == nil || deps.IssueReset == nil || deps.SendResetLink == nil {
		return deps.Errors.EngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", deps.Errors.InvalidInput, reasonMeta("empty_identifier"))
		return deps.Errors.InvalidInput
	}

	if deps.CheckForgotRate != nil {
		if err := deps.CheckForgotRate(ctx, identifier, deps.ClientIPFromContext(ctx)); err != nil {
			if errors.Is(err, deps.Errors.ResetRateLimited) {
				deps.MetricInc(deps.Metrics.PasswordResetRateLimited)
				deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", err, reasonMeta("rate_limited"))
			}
			return err
		}
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)

	user, err := deps.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", nil, reasonMeta("user_not_found"))
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	if statusErr := deps.AccountStatusError(user.Status); statusErr != nil {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.UserID, statusErr, reasonMeta("account_status"))
		return ctx.Err()
	}

	token, err := deps.IssueReset(user.UserID)
	if err != nil {
		return err
	}

	notice := ResetNotice{
		UserID:     user.UserID,
		Identifier: user.Identifier,
		Token:      token.Value,
		ExpiresAt:  token.ExpiresAt,
		Link:       deps.BuildResetLink(token.Value),
	}
	if notice.Identifier == "" {
		notice.Identifier = identifier
	}

	if err := deps.SendResetLink(ctx, notice); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		deps.MetricInc(deps.Metrics.PasswordResetNotifyFailure)
		deps.Warn(ctx, "reset link delivery failed", "user_id", user.UserID, "error", err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.UserID, err, reasonMeta("notify_failed"))
		return nil
	}

	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, user.UserID, nil, nil)
	return nil
}

// ResetPasswordDeps captures reset-password dependencies.
type ResetPasswordDeps struct {
	Now func() time.Time

	ParseReset     func(string) (TokenClaims, error)
	IsTokenExpired func(error) bool
	// ConsumeReset marks the token id used for ttl and fails with an error
	// matching Errors.ResetTokenUsed when it already was.
	ConsumeReset func(ctx context.Context, tokenID string, ttl time.Duration) error
	// ReleaseReset undoes ConsumeReset when the password could not be stored.
	ReleaseReset func(ctx context.Context, tokenID string) error

	GetUserByID        func(context.Context, string) (UserRecord, error)
	IsNotFound         func(error) bool
	AccountStatusError func(uint8) error
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error
	ResetLoginRate     func(ctx context.Context, identifier string) error

	Hooks
	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunResetPassword verifies a reset token, consumes it and stores newPassword
// for its subject. A token verifies successfully at most once.
func RunResetPassword(ctx context.Context, resetToken, newPassword string, deps ResetPasswordDeps) error {
	deps.Hooks.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.IsTokenExpired == nil {
		deps.IsTokenExpired = func(error) bool { return false }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.AccountStatusError == nil {
		deps.AccountStatusError = func(uint8) error { return nil }
	}
	if deps.ParseReset == nil || deps.ConsumeReset == nil || deps.GetUserByID == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(userID string, err error, reason string) error {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, userID, err, reasonMeta(reason))
		return err
	}

	if resetToken == "" {
		return fail("", deps.Errors.ResetInvalid, "missing_token")
	}
	if newPassword == "" {
		return fail("", deps.Errors.PasswordPolicy, "empty_password")
	}

	claims, err := deps.ParseReset(resetToken)
	if err != nil {
		if deps.IsTokenExpired(err) {
			return fail("", deps.Errors.ResetExpired, "expired")
		}
		return fail("", deps.Errors.ResetInvalid, "invalid")
	}

	user, err := deps.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if deps.IsNotFound(err) {
			return fail(claims.Subject, deps.Errors.ResetInvalid, "user_not_found")
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if statusErr := deps.AccountStatusError(user.Status); statusErr != nil {
		return fail(user.UserID, statusErr, "account_status")
	}

	// Hash before consuming so a policy rejection does not burn the token.
	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		return fail(user.UserID, err, "hash_failed")
	}

	if err := deps.ConsumeReset(ctx, claims.ID, claims.ExpiresAt.Sub(deps.Now())); err != nil {
		if errors.Is(err, deps.Errors.ResetTokenUsed) {
			deps.MetricInc(deps.Metrics.PasswordResetReplay)
			deps.EmitAudit(ctx, deps.Events.PasswordResetReplay, false, user.UserID, err, nil)
			return fail(user.UserID, err, "replay")
		}
		return err
	}

	if err := deps.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
		if deps.ReleaseReset != nil {
			// The caller may have cancelled ctx; the release must still run.
			if relErr := deps.ReleaseReset(context.WithoutCancel(ctx), claims.ID); relErr != nil {
				deps.Warn(ctx, "reset token release failed", "user_id", user.UserID, "error", relErr)
			}
		}
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, user.UserID, err, reasonMeta("store_failed"))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	if deps.ResetLoginRate != nil && user.Identifier != "" {
		if err := deps.ResetLoginRate(ctx, user.Identifier); err != nil {
			deps.Warn(ctx, "login limiter reset failed", "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.PasswordResetSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, user.UserID, nil, nil)
	return nil
}
