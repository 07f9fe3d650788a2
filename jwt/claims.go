package jwt

import "github.com/golang-jwt/jwt/v5"

// Kind names the purpose of a token. It is carried in the "knd" claim.
type Kind string

const (
	// KindAccess marks short-lived bearer tokens.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived tokens that only mint access tokens.
	KindRefresh Kind = "refresh"
	// KindReset marks single-purpose password reset tokens.
	KindReset Kind = "reset"
)

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Role string `json:"role,omitempty"`
	Kind Kind   `json:"knd"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. It carries only the subject.
type RefreshClaims struct {
	Kind Kind `json:"knd"`
	jwt.RegisteredClaims
}

// ResetClaims is the payload of a password reset token.
type ResetClaims struct {
	Kind Kind `json:"knd"`
	jwt.RegisteredClaims
}

type kindedClaims interface {
	jwt.Claims
	tokenKind() Kind
	subject() string
}

func (c AccessClaims) tokenKind() Kind  { return c.Kind }
func (c RefreshClaims) tokenKind() Kind { return c.Kind }
func (c ResetClaims) tokenKind() Kind   { return c.Kind }

func (c AccessClaims) subject() string  { return c.Subject }
func (c RefreshClaims) subject() string { return c.Subject }
func (c ResetClaims) subject() string   { return c.Subject }
