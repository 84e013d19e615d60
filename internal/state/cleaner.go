package state

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner drops idle turn records that have not changed for ttl. Pending prompts are never
// pruned: an unanswered prompt stays answerable indefinitely. Each candidate is re-checked
// under the user's lock, so a turn that moved on after the scan is kept.
type Cleaner struct {
	turns    StateMachine
	log      *slog.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewCleaner(turns StateMachine, log *slog.Logger, ttl, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		turns:    turns,
		log:      log,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.turns == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("state cleaner stopped", slog.Any("reason", ctx.Err()))
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	states, err := c.turns.GetAllStates(ctx)
	if err != nil {
		c.log.Error("state cleaner scan failed", slog.Any("error", err))
		return 0
	}

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for _, st := range states {
		if st == nil || st.CurrentState != StateIdle || !st.UpdatedAt.Before(cutoff) {
			continue
		}

		cleared, err := c.turns.ClearIdle(ctx, st.UserID, cutoff)
		if err != nil {
			c.log.Error("state cleaner failed to clear state", slog.Int64("user_id", st.UserID), slog.Any("error", err))
			continue
		}
		if cleared {
			removed++
		}
	}

	if removed > 0 {
		c.log.Debug("idle turns cleared", slog.Int("count", removed))
	}

	return removed
}
