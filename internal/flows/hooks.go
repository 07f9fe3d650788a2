package flows

import (
	"context"
	"time"
)

// Hooks carries the observability callbacks shared by every flow.
type Hooks struct {
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)
	Warn      func(ctx context.Context, msg string, args ...any)
}

func (h *Hooks) normalize() {
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if h.Warn == nil {
		h.Warn = func(context.Context, string, ...any) {}
	}
}

// UserRecord is the flow-local view of a principal.
type UserRecord struct {
	UserID             string
	Identifier         string
	PasswordHash       string
	Role               string
	Status             uint8
	NeedPasswordChange bool
}

// IssuedToken is the flow-local view of a freshly signed token.
type IssuedToken struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenClaims is the flow-local view of a verified token.
type TokenClaims struct {
	Subject   string
	ID        string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func reasonMeta(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}
