package idempotency

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 256

type memoryEntry struct {
	record    *Record
	expiresAt time.Time
}

// MemoryStore is the single-process Store. Expired entries are swept while writing.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	locks   map[string]time.Time
	records map[string]memoryEntry
	writes  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		locks:   make(map[string]time.Time),
		records: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Lock(_ context.Context, key string, lockTTL time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweepLocked(now)

	if expiresAt, ok := s.locks[key]; ok && now.Before(expiresAt) {
		return false, nil
	}

	s.locks[key] = now.Add(lockTTL)
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[key]
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, nil
	}

	copied := *entry.record
	return &copied, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweepLocked(now)

	copied := *record
	s.records[key] = memoryEntry{record: &copied, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) ReleaseLock(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.locks, key)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) maybeSweepLocked(now time.Time) {
	s.writes++
	if s.writes%sweepEvery != 0 {
		return
	}

	for key, expiresAt := range s.locks {
		if !now.Before(expiresAt) {
			delete(s.locks, key)
		}
	}
	for key, entry := range s.records {
		if !now.Before(entry.expiresAt) {
			delete(s.records, key)
		}
	}
}
