package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/mood-bot/pkg/metrics"
)

// Handler is the single place where failures are logged, reported and turned into user text.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle logs err and returns the message safe to show to the user and whether the
// operation may be retried. Internal details never reach the returned message.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}

	if ctx == nil {
		ctx = context.Background()
	}

	log := slog.Default()
	if h != nil && h.log != nil {
		log = h.log
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		metrics.RecordError(string(appErr.Kind), string(appErr.Severity))

		capture := h.captures() && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh)

		// Error level records are forwarded to Sentry by the logger, so an error captured here
		// with its tags is logged one level lower to be reported once.
		level := slog.LevelError
		if appErr.Severity == SeverityLow || capture {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "application error",
			slog.String("code", appErr.Code),
			slog.String("kind", string(appErr.Kind)),
			slog.String("severity", string(appErr.Severity)),
			slog.Bool("retryable", appErr.Retryable),
			slog.String("error", err.Error()),
		)

		if capture {
			h.sendToSentry(err)
		}

		userMessage := appErr.UserMessage
		if userMessage == "" {
			userMessage = GenericUserMessage
		}

		return userMessage, appErr.Retryable
	}

	metrics.RecordError("unknown", string(SeverityHigh))
	level := slog.LevelError
	if h.captures() {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "unknown error",
		slog.String("error", err.Error()),
		slog.String("severity", string(SeverityHigh)),
	)

	if h.captures() {
		h.sendToSentry(err)
	}

	return GenericUserMessage, false
}

func (h *Handler) captures() bool {
	return h != nil && h.sentryEnabled
}

func (h *Handler) sendToSentry(err error) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr != nil {
			if appErr.Code != "" {
				scope.SetTag("code", appErr.Code)
			}
			scope.SetTag("kind", string(appErr.Kind))

			if appErr.Severity != "" {
				scope.SetTag("severity", string(appErr.Severity))
			}
		}

		sentry.CaptureException(err)
	})
}
