package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mood-bot/internal/idempotency"
	"github.com/Proton-105/mood-bot/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu    sync.Mutex
	users []int64
	block chan struct{}
}

func (s *recordingSender) SendScheduledPrompt(_ context.Context, userID int64) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.users = append(s.users, userID)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) sent() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.users...)
}

func TestLocalDispatcher_OncePerUserAndDay(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	d := NewLocalDispatcher(sender, idempotency.NewManager(idempotency.NewMemoryStore(), testLogger()), 2, 8, testLogger())
	require.NoError(t, d.Start())

	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, d.Dispatch(ctx, 1, at))
	assert.ErrorIs(t, d.Dispatch(ctx, 1, at), scheduler.ErrDuplicateDispatch)
	require.NoError(t, d.Dispatch(ctx, 2, at))
	require.NoError(t, d.Dispatch(ctx, 1, at.AddDate(0, 0, 1)))

	require.NoError(t, d.Shutdown(ctx))
	assert.ElementsMatch(t, []int64{1, 2, 1}, sender.sent())

	assert.ErrorIs(t, d.Dispatch(ctx, 3, at), ErrDispatcherClosed)
}

func TestLocalDispatcher_QueueFullDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{block: make(chan struct{})}
	guard := idempotency.NewManager(idempotency.NewMemoryStore(), testLogger())
	d := NewLocalDispatcher(sender, guard, 1, 1, testLogger())

	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, d.Dispatch(ctx, 1, at))
	assert.ErrorIs(t, d.Dispatch(ctx, 2, at), ErrQueueFull)

	// the rejected user keeps its chance for the day
	require.NoError(t, guard.Claim(ctx, idempotency.PromptKey(2, at), time.Hour))

	require.NoError(t, d.Start())
	close(sender.block)
	require.NoError(t, d.Shutdown(ctx))
	assert.Equal(t, []int64{1}, sender.sent())
}

type mockManager struct {
	mock.Mock
}

func (m *mockManager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

func (m *mockManager) Close() error {
	return m.Called().Error(0)
}

func TestQueueDispatcher(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("enqueues prompt task", func(t *testing.T) {
		m := &mockManager{}
		m.On("Enqueue", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
			payload, err := ParseSendPromptPayload(task.Payload())
			return err == nil && task.Type() == TaskTypeSendPrompt && payload.UserID == 5 && payload.ScheduledFor.Equal(at)
		})).Return(&asynq.TaskInfo{ID: "prompt:5:2025-03-10"}, nil).Once()

		require.NoError(t, NewQueueDispatcher(m, nil, testLogger()).Dispatch(ctx, 5, at))
		m.AssertExpectations(t)
	})

	t.Run("task id conflict is a duplicate", func(t *testing.T) {
		m := &mockManager{}
		m.On("Enqueue", mock.Anything, mock.Anything).Return(nil, asynq.ErrTaskIDConflict).Once()

		err := NewQueueDispatcher(m, nil, testLogger()).Dispatch(ctx, 5, at)
		assert.ErrorIs(t, err, scheduler.ErrDuplicateDispatch)
	})

	t.Run("redis failure", func(t *testing.T) {
		m := &mockManager{}
		m.On("Enqueue", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()

		err := NewQueueDispatcher(m, nil, testLogger()).Dispatch(ctx, 5, at)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, scheduler.ErrDuplicateDispatch)
	})

	t.Run("shutdown closes client", func(t *testing.T) {
		m := &mockManager{}
		m.On("Close").Return(nil).Once()

		require.NoError(t, NewQueueDispatcher(m, nil, testLogger()).Shutdown(ctx))
		m.AssertExpectations(t)
	})
}

func TestParseSendPromptPayload(t *testing.T) {
	_, err := ParseSendPromptPayload([]byte(`{"scheduled_for":"2025-03-10T10:00:00Z"}`))
	assert.Error(t, err)
}
