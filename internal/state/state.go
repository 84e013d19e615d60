package state

import "time"

// State is a conversation turn state.
type State string

const (
	// StateIdle means no prompt is outstanding.
	StateIdle State = "idle"
	// StatePromptSent means a mood prompt was delivered and an answer is expected.
	StatePromptSent State = "prompt_sent"
	// StateRecording means an answer is being persisted.
	StateRecording State = "recording"
)

// UserState is the transient turn record for one user.
type UserState struct {
	UserID          int64     `json:"user_id"`
	ChatID          int64     `json:"chat_id"`
	CurrentState    State     `json:"current_state"`
	PromptMessageID int       `json:"prompt_message_id,omitempty"`
	Lang            string    `json:"lang,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasPendingPrompt reports whether a prompt message is still waiting for an answer.
func (s *UserState) HasPendingPrompt() bool {
	return s != nil && s.CurrentState == StatePromptSent && s.PromptMessageID != 0
}
