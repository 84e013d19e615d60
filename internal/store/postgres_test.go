package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mood-bot/internal/domain"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgres(db, testLogger()), mock
}

func TestPostgres_UpsertUser(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (user_id, username, first_name, last_name, last_activity)")).
		WithArgs(int64(1), "alice", "Alice", "A").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertUser(context.Background(), domain.Profile{ID: 1, Username: "alice", FirstName: "Alice", LastName: "A"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordMood(t *testing.T) {
	t.Run("append", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO mood_entries (user_id, mood_value)")).
			WithArgs(int64(1), -1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, s.RecordMood(context.Background(), 1, domain.MoodBad))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid value never reaches the database", func(t *testing.T) {
		s, mock := newMockStore(t)

		err := s.RecordMood(context.Background(), 1, domain.MoodValue(4))
		assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("write failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO mood_entries")).
			WillReturnError(errors.New("connection reset"))

		err := s.RecordMood(context.Background(), 1, domain.MoodGood)
		assert.True(t, apperrors.IsKind(err, apperrors.KindStoreWrite))
	})
}

func TestPostgres_ComputeStats(t *testing.T) {
	t.Run("averages", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM mood_entries")).
			WithArgs(int64(9)).
			WillReturnRows(sqlmock.NewRows([]string{"weekly", "monthly"}).AddRow(0.5, -0.25))

		stats := s.ComputeStats(context.Background(), 9)
		assert.Equal(t, domain.Stats{Weekly: 0.5, Monthly: -0.25}, stats)
	})

	t.Run("read failure degrades to neutral", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM mood_entries")).
			WillReturnError(errors.New("timeout"))

		assert.Equal(t, domain.Stats{}, s.ComputeStats(context.Background(), 9))
	})
}

func TestPostgres_ListNotifiableUsers(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE notifications_enabled = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(3)).AddRow(int64(8)))

	ids, err := s.ListNotifiableUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 8}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListNotifiableUsersFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE notifications_enabled = TRUE")).
		WillReturnError(errors.New("relation does not exist"))

	_, err := s.ListNotifiableUsers(context.Background())
	assert.True(t, apperrors.IsKind(err, apperrors.KindStoreRead))
}

func TestPostgres_SetNotificationPreference(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (user_id, notifications_enabled)")).
		WithArgs(int64(5), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SetNotificationPreference(context.Background(), 5, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListMoods(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at, id")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "mood_value", "created_at"}).
			AddRow(int64(1), int64(2), 1, at).
			AddRow(int64(2), int64(2), -1, at.Add(time.Minute)))

	entries, err := s.ListMoods(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.MoodGood, entries[0].Value)
	assert.Equal(t, domain.MoodBad, entries[1].Value)
}

func TestPostgres_GetUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "first_name", "last_name", "notifications_enabled", "last_activity"}))

	_, err := s.GetUser(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
