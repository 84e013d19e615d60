package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/conversation"
)

// NewStartHandler opts the sender in and sends the first prompt.
func NewStartHandler(conv Conversation) Handler {
	return command(conv.OnStart)
}

func NewStopHandler(conv Conversation) Handler {
	return command(conv.OnStop)
}

func NewStatsHandler(conv Conversation) Handler {
	return command(conv.OnStats)
}

func NewHelpHandler(conv Conversation) Handler {
	return command(conv.OnHelp)
}

// NewTextHandler answers any message that is not a known command.
func NewTextHandler(conv Conversation) Handler {
	return command(conv.OnText)
}

func command(fn func(ctx context.Context, in conversation.Inbound) error) Handler {
	return func(c telebot.Context) error {
		in, ok := Inbound(c)
		if !ok {
			return nil
		}
		return fn(Context(c), in)
	}
}
