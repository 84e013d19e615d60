package handlers

import (
	telebot "gopkg.in/telebot.v3"
)

// NewMoodHandler records the mood carried by a prompt button and acknowledges the press.
func NewMoodHandler(conv Conversation) CallbackHandler {
	return func(c telebot.Context) error {
		cb := c.Callback()
		in, ok := Inbound(c)
		if cb == nil || !ok {
			return nil
		}

		promptID := 0
		if cb.Message != nil {
			promptID = cb.Message.ID
			if cb.Message.Chat != nil {
				in.ChatID = cb.Message.Chat.ID
			}
		}

		if err := conv.OnMoodReply(Context(c), in, cb.Data, promptID); err != nil {
			return err
		}

		return c.Respond()
	}
}
