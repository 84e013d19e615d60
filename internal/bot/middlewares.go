package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/bot/handlers"
	"github.com/Proton-105/mood-bot/internal/conversation"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
	"github.com/Proton-105/mood-bot/internal/i18n"
	"github.com/Proton-105/mood-bot/internal/middleware"
	"github.com/Proton-105/mood-bot/internal/store"
	"github.com/Proton-105/mood-bot/pkg/logger"
)

// RecoveryMiddleware turns a panicking handler into a reported error and a generic reply.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler, catalog *i18n.Manager) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					ctx := handlers.Context(c)
					log.ErrorContext(ctx, "panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					fallback, _ := errHandler.Handle(ctx, fmt.Errorf("panic recovered: %v", r))
					if sendErr := c.Send(userText(catalog, c, nil, fallback)); sendErr != nil {
						log.ErrorContext(ctx, "failed to notify user about panic", slog.Any("error", sendErr))
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorBoundaryMiddleware is the single place where handler errors become user-facing text.
// A malformed button press gets a transient callback answer; everything else a message.
func ErrorBoundaryMiddleware(errHandler *apperrors.Handler, catalog *i18n.Manager, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			if errors.Is(err, conversation.ErrAnswerInProgress) {
				if c.Callback() != nil {
					return c.Respond()
				}
				return nil
			}

			ctx := handlers.Context(c)
			fallback, _ := errHandler.Handle(ctx, err)
			text := userText(catalog, c, err, fallback)

			if c.Callback() != nil {
				if apperrors.IsKind(err, apperrors.KindMalformedInput) {
					return c.Respond(&telebot.CallbackResponse{Text: text})
				}
				_ = c.Respond()
			}

			if sendErr := c.Send(text); sendErr != nil {
				log.WarnContext(ctx, "failed to deliver error message", slog.Any("error", sendErr))
			}
			return nil
		}
	}
}

func userText(catalog *i18n.Manager, c telebot.Context, err error, fallback string) string {
	if catalog == nil {
		if fallback == "" {
			return apperrors.GenericUserMessage
		}
		return fallback
	}

	lang := ""
	if c.Sender() != nil {
		lang = c.Sender().LanguageCode
	}

	tr := catalog.Translator(lang)
	if apperrors.IsKind(err, apperrors.KindMalformedInput) {
		return tr.T("errors.retry")
	}
	return tr.T("errors.generic")
}

// LoggingMiddleware attaches a correlation id to the update and logs its outcome.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			ctx := logger.WithCorrelationID(handlers.Context(c))
			handlers.WithContext(c, ctx)

			userID := int64(0)
			if c.Sender() != nil {
				userID = c.Sender().ID
			}
			action := middleware.CommandName(c)

			log.DebugContext(ctx, "handling update", slog.Int64("user_id", userID), slog.String("action", action))
			err := next(c)
			log.InfoContext(ctx, "handled update",
				slog.Int64("user_id", userID),
				slog.String("action", action),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// TouchMiddleware records the sender's profile and last activity on every contact. Failures
// are logged and do not block the update.
func TouchMiddleware(users store.Store, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if in, ok := handlers.Inbound(c); ok && users != nil {
				ctx := handlers.Context(c)
				if err := users.UpsertUser(ctx, in.Profile()); err != nil {
					log.WarnContext(ctx, "user activity not recorded", slog.Int64("user_id", in.UserID), slog.Any("error", err))
				}
			}

			return next(c)
		}
	}
}
