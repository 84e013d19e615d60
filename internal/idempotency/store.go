package idempotency

import (
	"context"
	"time"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

type Record struct {
	Status      string
	CompletedAt time.Time
}

// Store persists idempotency locks and completion records.
type Store interface {
	// Lock sets the key's lock if absent and reports whether it was acquired.
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	// Get returns the completion record or nil when none exists.
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	ReleaseLock(ctx context.Context, key string) error
}
