package idempotency

import (
	"fmt"
	"time"
)

// PromptKey identifies the daily prompt of a user; the day is taken in t's location.
func PromptKey(userID int64, t time.Time) string {
	return fmt.Sprintf("prompt:%d:%s", userID, t.Format(time.DateOnly))
}

// CallbackKey identifies an answer to a specific prompt message.
func CallbackKey(chatID int64, messageID int) string {
	return fmt.Sprintf("cb-msg:%d:%d", chatID, messageID)
}
