package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/bot/handlers"
	"github.com/Proton-105/mood-bot/internal/idempotency"
)

// AnswerTTL bounds how long an answered prompt message stays remembered.
const AnswerTTL = 7 * 24 * time.Hour

// Idempotency lets each prompt message be answered once. Presses on an already answered or
// in-flight prompt are acknowledged without running the handler again. Plain messages pass
// through.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			ctx := handlers.Context(c)

			var handlerErr error
			ran := false
			result, err := manager.Execute(ctx, key, AnswerTTL, func(context.Context) error {
				ran = true
				handlerErr = next(c)
				return handlerErr
			})

			switch {
			case err == nil && result.FromCache:
				log.InfoContext(ctx, "prompt already answered", slog.String("key", key))
				return c.Respond()
			case err == nil:
				return nil
			case errors.Is(err, idempotency.ErrRequestInProgress):
				return c.Respond()
			case ran && handlerErr == nil:
				log.WarnContext(ctx, "answer handled but not remembered", slog.String("key", key), slog.Any("error", err))
				return nil
			default:
				return err
			}
		}
	}
}

func extractIdempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	cb := c.Callback()
	if cb == nil || cb.Message == nil || cb.Message.ID == 0 {
		return ""
	}

	chatID := int64(0)
	if cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	return idempotency.CallbackKey(chatID, cb.Message.ID)
}
