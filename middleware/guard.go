package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/eventlyze/authflow"
)

// AccessValidator is satisfied by [authflow.Engine].
type AccessValidator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*authflow.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [Guard].
func PrincipalFromContext(ctx context.Context) (*authflow.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authflow.Principal)
	return p, ok && p != nil
}

// WithPrincipal stores p the way [Guard] does. Useful in handler tests.
func WithPrincipal(ctx context.Context, p *authflow.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard rejects requests without a valid bearer access token and stores the
// verified principal in the request context. Rejections are written as plain
// text; use [GuardWith] to render them another way.
func Guard(v AccessValidator) func(http.Handler) http.Handler {
	return GuardWith(v, writePlainError)
}

// GuardWith behaves like [Guard] but hands every rejection to onErr after the
// WWW-Authenticate challenge is set. err matches [authflow.ErrUnauthorized]
// for missing or rejected tokens and [authflow.ErrUnavailable] when the
// validator cannot answer.
func GuardWith(v AccessValidator, onErr func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	if onErr == nil {
		onErr = writePlainError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				onErr(w, r, authflow.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				onErr(w, r, authflow.ErrUnauthorized)
				return
			}

			principal, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				if !errors.Is(err, authflow.ErrUnavailable) {
					challenge := `Bearer error="invalid_token"`
					if errors.Is(err, authflow.ErrTokenExpired) {
						challenge += `, error_description="token expired"`
					}
					w.Header().Set("WWW-Authenticate", challenge)
				}
				onErr(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func writePlainError(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, authflow.ErrUnavailable) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
