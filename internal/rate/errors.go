package rate

import "errors"

var (
	// ErrRateLimited is returned once a window budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any Redis transport failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
