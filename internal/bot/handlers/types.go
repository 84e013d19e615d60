package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/conversation"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Conversation is the protocol the handlers drive.
type Conversation interface {
	OnStart(ctx context.Context, in conversation.Inbound) error
	OnMoodReply(ctx context.Context, in conversation.Inbound, payload string, promptMessageID int) error
	OnStop(ctx context.Context, in conversation.Inbound) error
	OnStats(ctx context.Context, in conversation.Inbound) error
	OnHelp(ctx context.Context, in conversation.Inbound) error
	OnText(ctx context.Context, in conversation.Inbound) error
}

const requestContextKey = "request_ctx"

// WithContext attaches ctx to the update so later middlewares and handlers share it.
func WithContext(c telebot.Context, ctx context.Context) {
	c.Set(requestContextKey, ctx)
}

// Context returns the context attached by WithContext, or a background context.
func Context(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(requestContextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// Inbound describes the sender of the update. The second result is false for updates without
// a sender.
func Inbound(c telebot.Context) (conversation.Inbound, bool) {
	if c == nil || c.Sender() == nil {
		return conversation.Inbound{}, false
	}

	sender := c.Sender()
	in := conversation.Inbound{
		UserID:    sender.ID,
		ChatID:    sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
		Lang:      sender.LanguageCode,
	}

	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	return in, true
}
