package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrTokenConsumed is returned when a single-use token id was already marked.
	ErrTokenConsumed = errors.New("token already consumed")
	// ErrLedgerUnavailable wraps Redis transport failures.
	ErrLedgerUnavailable = errors.New("token ledger unavailable")
)

// TokenLedger records token ids (jti) in Redis for as long as the token could
// still verify. It backs single-use reset tokens and the refresh denylist.
type TokenLedger struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTokenLedger returns a ledger writing keys under prefix.
func NewTokenLedger(redisClient redis.UniversalClient, prefix string) *TokenLedger {
	if prefix == "" {
		prefix = "atl"
	}
	return &TokenLedger{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *TokenLedger) key(tokenID string) string {
	return l.prefix + ":" + tokenID
}

// Consume marks tokenID as used. The first caller wins; every later caller,
// concurrent or not, gets ErrTokenConsumed until the mark expires after ttl.
func (l *TokenLedger) Consume(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("empty token id")
	}
	if ttl <= 0 {
		// Already past expiry; the token can no longer verify anyway.
		return nil
	}

	ok, err := l.redis.SetNX(ctx, l.key(tokenID), 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if !ok {
		return ErrTokenConsumed
	}

	return nil
}

// Release removes the mark for tokenID so a consumed token can be used
// again. Callers use it when the work guarded by Consume did not happen.
func (l *TokenLedger) Release(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return errors.New("empty token id")
	}
	if err := l.redis.Del(ctx, l.key(tokenID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// Mark records tokenID without caring whether it was already present.
func (l *TokenLedger) Mark(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("empty token id")
	}
	if ttl <= 0 {
		return nil
	}

	if err := l.redis.Set(ctx, l.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	return nil
}

// Contains reports whether tokenID is currently recorded.
func (l *TokenLedger) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	return n > 0, nil
}
