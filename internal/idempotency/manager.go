package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	claimPrefix    = "claim:"
	executeLockTTL = 5 * time.Minute
	pollInterval   = 100 * time.Millisecond
)

var (
	ErrRequestInProgress = errors.New("request with this key is already in progress")
	// ErrAlreadyClaimed is returned by Claim when the key was claimed earlier.
	ErrAlreadyClaimed = errors.New("key already claimed")
)

type Operation func(ctx context.Context) error

type Result struct {
	FromCache bool
}

type Manager interface {
	// Execute runs fn at most once successfully per key within ttl. A failed fn leaves the key
	// free so the caller may try again.
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
	// Claim marks key as taken for ttl and returns ErrAlreadyClaimed when it already was.
	Claim(ctx context.Context, key string, ttl time.Duration) error
	// Release drops a claim so the key can be claimed again.
	Release(ctx context.Context, key string) error
}

type manager struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record != nil && record.Status == StatusCompleted {
			return &Result{FromCache: true}, nil
		}

		locked, err := m.store.Lock(ctx, key, executeLockTTL)
		if err != nil {
			return nil, err
		}

		if !locked {
			if record == nil || record.Status == StatusProcessing {
				return nil, ErrRequestInProgress
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
				continue
			}
		}

		return m.run(ctx, key, ttl, fn)
	}
}

func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("idempotency lock not released", slog.String("key", key), slog.Any("error", err))
		}
	}()

	if err := fn(ctx); err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, CompletedAt: m.now()}, ttl); err != nil {
		return nil, err
	}

	return &Result{FromCache: false}, nil
}

func (m *manager) Claim(ctx context.Context, key string, ttl time.Duration) error {
	acquired, err := m.store.Lock(ctx, claimPrefix+key, ttl)
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if !acquired {
		return ErrAlreadyClaimed
	}
	return nil
}

func (m *manager) Release(ctx context.Context, key string) error {
	return m.store.ReleaseLock(ctx, claimPrefix+key)
}
