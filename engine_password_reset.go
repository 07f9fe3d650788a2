package authflow

import (
	"context"
	"errors"
	"time"

	"github.com/eventlyze/authflow/internal/flows"
	"github.com/eventlyze/authflow/internal/stores"
)

// ForgotPassword issues a reset token for identifier and hands it to the
// [Notifier].
//
// The result does not depend on whether the identifier exists: unknown
// identifiers, inactive accounts and delivery failures all return nil.
// Only empty input, rate limiting, store outages and context cancellation
// are reported.
func (e *Engine) ForgotPassword(ctx context.Context, identifier string) error {
	return flows.RunForgotPassword(ctx, identifier, e.forgotPasswordFlowDeps())
}

// ResetPassword verifies resetToken and stores newPassword for its subject.
// Each reset token succeeds at most once; a replay returns
// [ErrResetTokenUsed]. A password rejected by policy does not consume the
// token.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	return flows.RunResetPassword(ctx, resetToken, newPassword, e.resetPasswordFlowDeps())
}

func (e *Engine) passwordResetMetrics() flows.PasswordResetMetrics {
	return flows.PasswordResetMetrics{
		PasswordResetRequest:       int(MetricPasswordResetRequest),
		PasswordResetNotifyFailure: int(MetricPasswordResetNotifyFailure),
		PasswordResetRateLimited:   int(MetricPasswordResetRateLimited),
		PasswordResetSuccess:       int(MetricPasswordResetSuccess),
		PasswordResetFailure:       int(MetricPasswordResetFailure),
		PasswordResetReplay:        int(MetricPasswordResetReplay),
	}
}

var passwordResetEvents = flows.PasswordResetEvents{
	PasswordResetRequest: auditEventPasswordResetRequest,
	PasswordResetConfirm: auditEventPasswordResetConfirm,
	PasswordResetReplay:  auditEventPasswordResetReplay,
}

var passwordResetErrors = flows.PasswordResetErrors{
	EngineNotReady:   ErrEngineNotReady,
	InvalidInput:     ErrInvalidInput,
	ResetRateLimited: ErrResetRateLimited,
	ResetInvalid:     ErrResetInvalid,
	ResetExpired:     ErrResetExpired,
	ResetTokenUsed:   ErrResetTokenUsed,
	PasswordPolicy:   ErrPasswordPolicy,
	StoreUnavailable: ErrStoreUnavailable,
}

func (e *Engine) forgotPasswordFlowDeps() flows.ForgotPasswordDeps {
	if e == nil || e.userProvider == nil || e.notifier == nil || e.resetTokens == nil {
		return flows.ForgotPasswordDeps{Errors: flows.PasswordResetErrors{EngineNotReady: ErrEngineNotReady}}
	}

	deps := flows.ForgotPasswordDeps{
		ClientIPFromContext: clientIPFromContext,
		GetUserByIdentifier: e.getUserByIdentifier,
		IsNotFound:          isNotFound,
		AccountStatusError:  flowAccountStatusError,
		IssueReset:          e.issueReset,
		BuildResetLink:      e.buildResetLink,
		SendResetLink: func(ctx context.Context, n flows.ResetNotice) error {
			return e.notifier.SendResetLink(ctx, ResetNotice{
				UserID:     n.UserID,
				Identifier: n.Identifier,
				Token:      n.Token,
				ExpiresAt:  n.ExpiresAt,
				Link:       n.Link,
			})
		},
		Hooks:   e.flowHooks(),
		Metrics: e.passwordResetMetrics(),
		Events:  passwordResetEvents,
		Errors:  passwordResetErrors,
	}
	if e.rateLimiter != nil {
		deps.CheckForgotRate = func(ctx context.Context, identifier, ip string) error {
			return mapRateError(e.rateLimiter.CheckForgot(ctx, identifier, ip), ErrResetRateLimited)
		}
	}

	return deps
}

func (e *Engine) resetPasswordFlowDeps() flows.ResetPasswordDeps {
	if e == nil || e.userProvider == nil || e.resetTokens == nil || e.resetLedger == nil || e.passwordHash == nil {
		return flows.ResetPasswordDeps{Errors: flows.PasswordResetErrors{EngineNotReady: ErrEngineNotReady}}
	}

	deps := flows.ResetPasswordDeps{
		Now:            e.now,
		ParseReset:     e.parseReset,
		IsTokenExpired: isTokenExpired,
		ConsumeReset: func(ctx context.Context, tokenID string, ttl time.Duration) error {
			err := e.resetLedger.Consume(ctx, tokenID, e.ledgerTTL(ttl))
			if errors.Is(err, stores.ErrTokenConsumed) {
				return ErrResetTokenUsed
			}
			return mapLedgerError(err)
		},
		ReleaseReset: func(ctx context.Context, tokenID string) error {
			return mapLedgerError(e.resetLedger.Release(ctx, tokenID))
		},
		GetUserByID:        e.getUserByID,
		IsNotFound:         isNotFound,
		AccountStatusError: flowAccountStatusError,
		HashPassword:       e.hashPassword,
		UpdatePasswordHash: e.userProvider.UpdatePasswordHash,
		Hooks:              e.flowHooks(),
		Metrics:            e.passwordResetMetrics(),
		Events:             passwordResetEvents,
		Errors:             passwordResetErrors,
	}
	if e.rateLimiter != nil {
		deps.ResetLoginRate = e.rateLimiter.ResetLogin
	}

	return deps
}

func (e *Engine) buildResetLink(token string) string {
	if e.config.ResetLinkBase == "" {
		return ""
	}
	return e.config.ResetLinkBase + token
}
