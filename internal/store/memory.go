package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Proton-105/mood-bot/internal/domain"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
)

// Memory is an in-process Store for local runs and tests. Data is lost on exit.
type Memory struct {
	mu     sync.RWMutex
	now    func() time.Time
	users  map[int64]*domain.User
	moods  map[int64][]domain.MoodEntry
	nextID int64
}

func NewMemory() *Memory {
	return &Memory{
		now:   time.Now,
		users: make(map[int64]*domain.User),
		moods: make(map[int64][]domain.MoodEntry),
	}
}

func (m *Memory) UpsertUser(_ context.Context, profile domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.userLocked(profile.ID)
	user.Username = profile.Username
	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.LastActivity = m.now()

	return nil
}

func (m *Memory) GetUser(_ context.Context, userID int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	copied := *user
	return &copied, nil
}

func (m *Memory) RecordMood(_ context.Context, userID int64, value domain.MoodValue) error {
	if !value.Valid() {
		return apperrors.NewInvalidInputError(fmt.Sprintf("mood value %d", value), domain.ErrInvalidMood)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return apperrors.NewStoreWriteError("record_mood", fmt.Errorf("%w: %d", ErrUserNotFound, userID))
	}

	m.nextID++
	m.moods[userID] = append(m.moods[userID], domain.MoodEntry{
		ID:        m.nextID,
		UserID:    userID,
		Value:     value,
		CreatedAt: m.now(),
	})

	return nil
}

func (m *Memory) ListMoods(_ context.Context, userID int64) ([]domain.MoodEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.moods[userID]
	out := make([]domain.MoodEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *Memory) ComputeStats(_ context.Context, userID int64) domain.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return domain.ComputeStats(m.moods[userID], m.now())
}

func (m *Memory) ListNotifiableUsers(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.users))
	for id, user := range m.users {
		if user.NotificationsEnabled {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) SetNotificationPreference(_ context.Context, userID int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.userLocked(userID).NotificationsEnabled = enabled
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) userLocked(userID int64) *domain.User {
	user, ok := m.users[userID]
	if !ok {
		user = &domain.User{
			ID:           userID,
			LastActivity: m.now(),
		}
		m.users[userID] = user
	}
	return user
}
