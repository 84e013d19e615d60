package conversation

import "context"

// Choice is one selectable action attached to an outgoing message.
type Choice struct {
	Text    string
	Payload string
}

// Gateway is the messaging transport. Implementations return transport errors for rejected or
// failed calls.
type Gateway interface {
	// SendMessage delivers text, optionally with choices rendered side by side, and returns the
	// id of the sent message.
	SendMessage(ctx context.Context, chatID int64, text string, choices []Choice) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Jobs installs and cancels a user's daily notification.
type Jobs interface {
	Enable(ctx context.Context, userID int64) error
	Disable(ctx context.Context, userID int64) bool
}
