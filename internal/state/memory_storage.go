package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage keeps turn state in process memory. Turns are lost on restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	states map[int64]UserState
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{states: make(map[int64]UserState)}
}

func (s *MemoryStorage) GetState(_ context.Context, userID int64) (*UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[userID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return &st, nil
}

func (s *MemoryStorage) SetState(_ context.Context, userID int64, state *UserState) error {
	if state == nil {
		return nil
	}

	state.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.states[userID] = *state
	s.mu.Unlock()

	return nil
}

func (s *MemoryStorage) ClearState(_ context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.states, userID)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStorage) GetAllStates(_ context.Context) ([]*UserState, error) {
	s.mu.RLock()
	result := make([]*UserState, 0, len(s.states))
	for _, st := range s.states {
		copied := st
		result = append(result, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}
