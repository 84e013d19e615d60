package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/bot/keyboard"
	"github.com/Proton-105/mood-bot/internal/conversation"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
)

// API is the subset of *telebot.Bot the gateway calls.
type API interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Delete(msg telebot.Editable) error
}

// Gateway sends and removes messages through the Telegram Bot API behind a circuit breaker.
// Telegram rejections (bad request, blocked bot) do not count toward tripping the breaker.
type Gateway struct {
	api     API
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
}

var _ conversation.Gateway = (*Gateway)(nil)

func NewGateway(api API, breaker *apperrors.CircuitBreaker, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if breaker == nil {
		breaker = apperrors.NewCircuitBreaker(apperrors.DefaultBreakerSettings)
	}

	return &Gateway{
		api:     api,
		breaker: breaker,
		log:     log.With(slog.String("component", "gateway")),
	}
}

func (g *Gateway) SendMessage(ctx context.Context, chatID int64, text string, choices []conversation.Choice) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.NewTransportError("send_message", err)
	}

	opts := make([]interface{}, 0, 1)
	if len(choices) > 0 {
		buttons := make([]keyboard.InlineButton, 0, len(choices))
		for _, choice := range choices {
			buttons = append(buttons, keyboard.InlineButton{Text: choice.Text, Data: choice.Payload})
		}

		markup, err := keyboard.NewInlineKeyboard().AddRow(buttons...).Build()
		if err != nil {
			return 0, apperrors.NewTransportError("send_message", err)
		}
		opts = append(opts, markup)
	}

	var msg *telebot.Message
	err := g.call(func() error {
		var err error
		msg, err = g.api.Send(telebot.ChatID(chatID), text, opts...)
		return err
	})
	if err != nil {
		return 0, apperrors.NewTransportError("send_message", err)
	}
	if msg == nil {
		return 0, apperrors.NewTransportError("send_message", errors.New("empty response"))
	}

	return msg.ID, nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewTransportError("delete_message", err)
	}

	err := g.call(func() error {
		return g.api.Delete(telebot.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID})
	})
	if err != nil {
		return apperrors.NewTransportError("delete_message", err)
	}
	return nil
}

func (g *Gateway) call(fn func() error) error {
	var rejected error
	err := g.breaker.Call(func() error {
		err := fn()
		var apiErr *telebot.Error
		if errors.As(err, &apiErr) {
			rejected = err
			return nil
		}
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrCircuitOpen) {
			g.log.Warn("telegram calls suspended", slog.String("state", g.breaker.State().String()))
		}
		return err
	}
	return rejected
}
