// Package ratelimit implements sliding-window limits for inbound updates.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest counted request leaves the window.
	ResetAt time.Time
}

// Limiter returns ErrLimitExceeded together with a non-nil Result when the key is over limit.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

var ErrLimitExceeded = errors.New("rate limit exceeded")
