package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. A zero max disables that limiter.
type Config struct {
	EnableIPThrottle       bool
	MaxLoginAttempts       int
	LoginCooldownDuration  time.Duration
	MaxForgotAttempts      int
	ForgotCooldownDuration time.Duration
}

// Limiter enforces per-identifier and per-IP fixed-window limits for login
// failures and forgot-password requests using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin checks whether the identifier+IP pair is within the failed-login
// budget without consuming it.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, loginUserKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the identifier+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, loginUserKey(identifier), l.config.LoginCooldownDuration)
	if err != nil {
		return err
	}
	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginCooldownDuration)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the failed-login counter for the identifier. The IP
// counter is left alone so one good account cannot launder a sprayed IP.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.redis.Del(ctx, loginUserKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// CheckForgot consumes one forgot-password request for the identifier+IP
// pair and fails once the window budget is exhausted.
func (l *Limiter) CheckForgot(ctx context.Context, identifier, ip string) error {
	if l.config.MaxForgotAttempts <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, forgotUserKey(identifier), l.config.ForgotCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxForgotAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, forgotIPKey(ip), l.config.ForgotCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxForgotAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// GetLoginAttempts returns the current failed-attempt counter for an identifier.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) GetLoginAttempts(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, loginUserKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func loginUserKey(identifier string) string {
	return "al:" + normalize(identifier)
}

func loginIPKey(ip string) string {
	return "ali:" + ip
}

func forgotUserKey(identifier string) string {
	return "afp:" + normalize(identifier)
}

func forgotIPKey(ip string) string {
	return "afpi:" + ip
}
