package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mood-bot/internal/domain"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
)

func TestMemory_RecordMoodIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.UpsertUser(ctx, domain.Profile{ID: 1}))

	for _, v := range []domain.MoodValue{domain.MoodGood, domain.MoodBad, domain.MoodNeutral} {
		require.NoError(t, s.RecordMood(ctx, 1, v))
	}

	entries, err := s.ListMoods(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.MoodGood, entries[0].Value)
	assert.Equal(t, domain.MoodBad, entries[1].Value)
	assert.Equal(t, domain.MoodNeutral, entries[2].Value)
	assert.Less(t, entries[0].ID, entries[1].ID)

	err = s.RecordMood(ctx, 1, domain.MoodValue(3))
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))

	entries, err = s.ListMoods(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestMemory_ComputeStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	assert.Equal(t, domain.Stats{}, s.ComputeStats(ctx, 1))

	require.NoError(t, s.UpsertUser(ctx, domain.Profile{ID: 1}))
	for _, v := range []domain.MoodValue{domain.MoodGood, domain.MoodGood, domain.MoodBad} {
		require.NoError(t, s.RecordMood(ctx, 1, v))
	}

	stats := s.ComputeStats(ctx, 1)
	assert.Equal(t, "0.33", fmt.Sprintf("%.2f", stats.Weekly))
	assert.Equal(t, "0.33", fmt.Sprintf("%.2f", stats.Monthly))
}

func TestMemory_MonthlyIsUnboundedHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemory()
	s.now = func() time.Time { return now.AddDate(-1, 0, 0) }

	require.NoError(t, s.UpsertUser(ctx, domain.Profile{ID: 1}))
	require.NoError(t, s.RecordMood(ctx, 1, domain.MoodBad))

	s.now = func() time.Time { return now }
	require.NoError(t, s.RecordMood(ctx, 1, domain.MoodGood))

	stats := s.ComputeStats(ctx, 1)
	assert.Equal(t, float64(1), stats.Weekly)
	assert.Equal(t, float64(0), stats.Monthly)
}

func TestMemory_NotificationPreference(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.SetNotificationPreference(ctx, 20, true))
	require.NoError(t, s.SetNotificationPreference(ctx, 10, true))
	require.NoError(t, s.SetNotificationPreference(ctx, 10, true))
	require.NoError(t, s.UpsertUser(ctx, domain.Profile{ID: 30, Username: "idle"}))

	ids, err := s.ListNotifiableUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, ids)

	require.NoError(t, s.SetNotificationPreference(ctx, 20, false))
	ids, err = s.ListNotifiableUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)

	user, err := s.GetUser(ctx, 20)
	require.NoError(t, err)
	assert.False(t, user.NotificationsEnabled)
}

func TestMemory_UpsertUserMergesDisplayFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.SetNotificationPreference(ctx, 1, true))
	require.NoError(t, s.UpsertUser(ctx, domain.Profile{ID: 1, Username: "old"}))
	require.NoError(t, s.UpsertUser(ctx, domain.Profile{ID: 1, Username: "new", FirstName: "N"}))

	user, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", user.Username)
	assert.Equal(t, "N", user.FirstName)
	assert.True(t, user.NotificationsEnabled)

	_, err = s.GetUser(ctx, 2)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
