package authflow

import "errors"

// Error kinds. Every detailed error below matches one or more kinds with
// [errors.Is], so callers can branch on either level.
var (
	// ErrTokenInvalid matches tokens that are malformed, tampered, wrongly
	// signed, of the wrong kind or revoked.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired matches correctly signed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnauthorized matches failures where the caller did not prove identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches failures where identity is proven but not allowed.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned by a [UserProvider] when no principal matches.
	ErrNotFound = errors.New("not found")
	// ErrValidation matches malformed or policy-violating input.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited matches requests rejected by a limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable matches backend and configuration failures.
	ErrUnavailable = errors.New("unavailable")
)

var (
	ErrEngineNotReady   = newError("engine not ready", ErrUnavailable)
	ErrStoreUnavailable = newError("store unavailable", ErrUnavailable)
	ErrInvalidInput     = newError("required input missing", ErrValidation)
	ErrUserNotFound     = newError("user not found", ErrNotFound)

	// ErrInvalidCredentials is returned for both an unknown identifier and a
	// wrong password.
	ErrInvalidCredentials = newError("invalid credentials", ErrUnauthorized)
	ErrLoginRateLimited   = newError("too many login attempts", ErrRateLimited)
	ErrAccountDisabled    = newError("account disabled", ErrForbidden)
	ErrAccountLocked      = newError("account locked", ErrForbidden)

	ErrAccessTokenInvalid = newError("access token invalid", ErrUnauthorized, ErrTokenInvalid)
	ErrAccessTokenExpired = newError("access token expired", ErrUnauthorized, ErrTokenExpired)

	ErrRefreshInvalid = newError("refresh token invalid", ErrUnauthorized, ErrTokenInvalid)
	ErrRefreshExpired = newError("refresh token expired", ErrUnauthorized, ErrTokenExpired)
	// ErrRefreshRevoked is returned for a refresh token presented after logout.
	ErrRefreshRevoked = newError("refresh token revoked", ErrUnauthorized, ErrTokenInvalid)

	ErrPasswordPolicy = newError("password policy violation", ErrValidation)
	ErrPasswordReuse  = newError("new password must differ from the current one", ErrValidation)

	ErrResetRateLimited = newError("too many password reset requests", ErrRateLimited)
	ErrResetInvalid     = newError("reset token invalid", ErrUnauthorized, ErrTokenInvalid)
	ErrResetExpired     = newError("reset token expired", ErrUnauthorized, ErrTokenExpired)
	ErrResetTokenUsed   = newError("reset token already used", ErrUnauthorized, ErrTokenInvalid)
)

// authError is a detailed error carrying its kinds.
type authError struct {
	msg   string
	kinds []error
}

func newError(msg string, kinds ...error) error {
	return &authError{msg: msg, kinds: kinds}
}

func (e *authError) Error() string {
	return e.msg
}

func (e *authError) Unwrap() []error {
	return e.kinds
}

func accountStatusToError(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountLocked:
		return ErrAccountLocked
	default:
		return ErrAccountDisabled
	}
}
