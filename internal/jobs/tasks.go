package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/mood-bot/internal/idempotency"
)

const TaskTypeSendPrompt = "mood:prompt"

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// promptRetention keeps a finished task id long enough to reject a second firing the same day.
const promptRetention = 24 * time.Hour

type SendPromptPayload struct {
	UserID       int64     `json:"user_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSendPromptTask builds a task whose id is unique per user and day. It is never retried.
func NewSendPromptTask(userID int64, scheduledFor time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(SendPromptPayload{UserID: userID, ScheduledFor: scheduledFor})
	if err != nil {
		return nil, fmt.Errorf("encode prompt payload: %w", err)
	}

	return asynq.NewTask(TaskTypeSendPrompt, payload,
		asynq.Queue(QueueDefault),
		asynq.TaskID(idempotency.PromptKey(userID, scheduledFor)),
		asynq.MaxRetry(0),
		asynq.Retention(promptRetention),
	), nil
}

func ParseSendPromptPayload(data []byte) (SendPromptPayload, error) {
	var payload SendPromptPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode prompt payload: %w", err)
	}
	if payload.UserID == 0 {
		return payload, fmt.Errorf("decode prompt payload: missing user_id")
	}
	return payload, nil
}
