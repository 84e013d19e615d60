package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mood-bot/internal/jobs"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendScheduledPrompt(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func TestSendPromptHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	task, err := jobs.NewSendPromptTask(12, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	t.Run("delivers", func(t *testing.T) {
		sender := &mockSender{}
		sender.On("SendScheduledPrompt", mock.Anything, int64(12)).Return(nil).Once()

		require.NoError(t, NewSendPromptHandler(sender, log).ProcessTask(context.Background(), task))
		sender.AssertExpectations(t)
	})

	t.Run("failure is not retried", func(t *testing.T) {
		sender := &mockSender{}
		sender.On("SendScheduledPrompt", mock.Anything, int64(12)).Return(errors.New("blocked by user")).Once()

		err := NewSendPromptHandler(sender, log).ProcessTask(context.Background(), task)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("bad payload", func(t *testing.T) {
		sender := &mockSender{}
		err := NewSendPromptHandler(sender, log).ProcessTask(context.Background(), asynq.NewTask(jobs.TaskTypeSendPrompt, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		sender.AssertNotCalled(t, "SendScheduledPrompt", mock.Anything, mock.Anything)
	})
}
