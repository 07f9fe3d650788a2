package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/eventlyze/authflow"
	"github.com/eventlyze/authflow/httpapi"
	"github.com/eventlyze/authflow/middleware"
)

// Guards the exported surface consumers compile against.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = authflow.New
	_ = authflow.DefaultConfig

	var _ *authflow.Engine
	var _ authflow.Config
	var _ authflow.LoginResult
	var _ authflow.RefreshResult
	var _ authflow.Principal
	var _ authflow.UserProvider
	var _ authflow.Notifier
	var _ authflow.AuditSink

	var _ error = authflow.ErrInvalidCredentials
	var _ error = authflow.ErrLoginRateLimited
	var _ error = authflow.ErrRefreshInvalid
	var _ error = authflow.ErrRefreshExpired
	var _ error = authflow.ErrRefreshRevoked
	var _ error = authflow.ErrResetInvalid
	var _ error = authflow.ErrResetExpired
	var _ error = authflow.ErrResetTokenUsed
	var _ error = authflow.ErrAccessTokenInvalid
	var _ error = authflow.ErrAccessTokenExpired

	var _ func(middleware.AccessValidator) func(http.Handler) http.Handler = middleware.Guard
	var _ middleware.AccessValidator = (*authflow.Engine)(nil)
	var _ httpapi.Engine = (*authflow.Engine)(nil)

	var _ func(*authflow.Engine, context.Context, string, string) (*authflow.LoginResult, error) = (*authflow.Engine).Login
	var _ func(*authflow.Engine, context.Context, string) (*authflow.RefreshResult, error) = (*authflow.Engine).Refresh
	var _ func(*authflow.Engine, context.Context, string, string, string) error = (*authflow.Engine).ChangePassword
	var _ func(*authflow.Engine, context.Context, string) error = (*authflow.Engine).ForgotPassword
	var _ func(*authflow.Engine, context.Context, string, string) error = (*authflow.Engine).ResetPassword
	var _ func(*authflow.Engine, context.Context, string) error = (*authflow.Engine).Logout
	var _ func(*authflow.Engine, context.Context, string) (*authflow.Principal, error) = (*authflow.Engine).ValidateAccess
}
