package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/mood-bot/internal/jobs"
	"github.com/Proton-105/mood-bot/pkg/logger"
)

// SendPromptHandler delivers queued daily prompts. Failures are not retried; the next attempt
// is tomorrow's firing.
type SendPromptHandler struct {
	sender jobs.PromptSender
	log    *slog.Logger
}

func NewSendPromptHandler(sender jobs.PromptSender, log *slog.Logger) *SendPromptHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SendPromptHandler{sender: sender, log: log}
}

func (h *SendPromptHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ctx = logger.WithCorrelationID(ctx)

	payload, err := jobs.ParseSendPromptPayload(t.Payload())
	if err != nil {
		h.log.ErrorContext(ctx, "send prompt: bad payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	h.log.InfoContext(ctx, "sending scheduled prompt",
		slog.Int64("user_id", payload.UserID),
		slog.Time("scheduled_for", payload.ScheduledFor),
	)

	if err := h.sender.SendScheduledPrompt(ctx, payload.UserID); err != nil {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	return nil
}
