package authflow

import (
	"context"
	"time"
)

// AccountStatus represents the lifecycle state of a user account. Any status
// other than AccountActive blocks login, refresh and password operations.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountDisabled
	AccountLocked
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountDisabled:
		return "disabled"
	case AccountLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// UserRecord is the principal as stored by the [UserProvider].
type UserRecord struct {
	UserID       string
	Identifier   string
	PasswordHash string
	Role         string
	Status       AccountStatus

	// NeedPasswordChange is reported on login without blocking it.
	NeedPasswordChange bool
}

// UserProvider is the persistence boundary of the engine.
//
// Lookups signal a missing principal with an error matching [ErrNotFound].
// Any other error is treated as a store failure.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	// UpdatePasswordHash stores newHash and clears NeedPasswordChange.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// ResetNotice is handed to the [Notifier] when a reset token is issued.
// Token is a bearer credential and must only reach the account owner.
type ResetNotice struct {
	UserID     string
	Identifier string
	Token      string
	ExpiresAt  time.Time
	// Link is Config.ResetLinkBase joined with Token, or empty when no base
	// is configured.
	Link string
}

// Notifier delivers password reset tokens out of band.
type Notifier interface {
	SendResetLink(ctx context.Context, notice ResetNotice) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, notice ResetNotice) error

func (f NotifierFunc) SendResetLink(ctx context.Context, notice ResetNotice) error {
	return f(ctx, notice)
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	UserID           string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time

	NeedPasswordChange bool
}

// RefreshResult is returned by [Engine.Refresh].
type RefreshResult struct {
	UserID      string
	AccessToken string
}

// Principal is the verified identity carried by an access token.
type Principal struct {
	UserID    string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HealthStatus reports backend reachability.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}
