package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, testLogger()),
	}
}

func TestManager_Execute(t *testing.T) {
	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(store, testLogger())
			key := CallbackKey(10, 20)

			calls := 0
			fn := func(context.Context) error {
				calls++
				return nil
			}

			res, err := m.Execute(ctx, key, time.Hour, fn)
			require.NoError(t, err)
			assert.False(t, res.FromCache)

			res, err = m.Execute(ctx, key, time.Hour, fn)
			require.NoError(t, err)
			assert.True(t, res.FromCache)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestManager_ExecuteFailureLeavesKeyFree(t *testing.T) {
	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(store, testLogger())
			key := CallbackKey(1, 2)
			boom := errors.New("store down")

			_, err := m.Execute(ctx, key, time.Hour, func(context.Context) error { return boom })
			assert.ErrorIs(t, err, boom)

			res, err := m.Execute(ctx, key, time.Hour, func(context.Context) error { return nil })
			require.NoError(t, err)
			assert.False(t, res.FromCache)
		})
	}
}

func TestManager_ExecuteInProgress(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, testLogger())
	key := CallbackKey(3, 4)

	locked, err := store.Lock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	_, err = m.Execute(ctx, key, time.Hour, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRequestInProgress)
}

func TestManager_Claim(t *testing.T) {
	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(store, testLogger())
			day := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
			key := PromptKey(42, day)

			require.NoError(t, m.Claim(ctx, key, 24*time.Hour))
			assert.ErrorIs(t, m.Claim(ctx, key, 24*time.Hour), ErrAlreadyClaimed)

			require.NoError(t, m.Claim(ctx, PromptKey(42, day.AddDate(0, 0, 1)), 24*time.Hour))

			require.NoError(t, m.Release(ctx, key))
			assert.NoError(t, m.Claim(ctx, key, 24*time.Hour))
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", &Record{Status: StatusCompleted}, time.Minute))
	rec, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, rec)

	now = now.Add(2 * time.Minute)
	rec, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestKeys(t *testing.T) {
	at := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "prompt:7:2025-03-10", PromptKey(7, at))
	assert.Equal(t, "cb-msg:-100:15", CallbackKey(-100, 15))
}
