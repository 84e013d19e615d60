package ratelimit

import (
	"fmt"
	"time"

	"github.com/Proton-105/mood-bot/pkg/config"
)

// Rules is the parsed per-user limit plus the users exempt from it.
type Rules struct {
	limit  int
	window time.Duration
	exempt map[int64]struct{}
}

// NewRules validates cfg; a missing or non-positive window is an error.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	if cfg.PerUser.Window == "" {
		return nil, fmt.Errorf("rate limit: window is not set")
	}

	window, err := time.ParseDuration(cfg.PerUser.Window)
	if err != nil {
		return nil, fmt.Errorf("rate limit: window %q: %w", cfg.PerUser.Window, err)
	}
	if window <= 0 || cfg.PerUser.Limit <= 0 {
		return nil, fmt.Errorf("rate limit: limit and window must be positive")
	}

	exempt := make(map[int64]struct{}, len(cfg.Whitelist))
	for _, id := range cfg.Whitelist {
		exempt[id] = struct{}{}
	}

	return &Rules{limit: cfg.PerUser.Limit, window: window, exempt: exempt}, nil
}

func (r *Rules) Exempt(userID int64) bool {
	_, ok := r.exempt[userID]
	return ok
}

// PerUser returns the number of updates a user may send per window.
func (r *Rules) PerUser() (int, time.Duration) {
	return r.limit, r.window
}
