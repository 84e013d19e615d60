package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
	"github.com/Proton-105/mood-bot/internal/i18n"
	"github.com/Proton-105/mood-bot/internal/ratelimit"
	"github.com/Proton-105/mood-bot/pkg/metrics"
)

// RateLimitMiddleware enforces per-user rate limits for incoming Telegram updates.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	catalog *i18n.Manager
	log     *slog.Logger
	now     func() time.Time
}

func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, catalog *i18n.Manager, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		catalog: catalog,
		log:     log,
		now:     time.Now,
	}
}

// Handle returns a telebot middleware. Limiter failures let the update through.
func (m *RateLimitMiddleware) Handle(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if m.limiter == nil || m.rules == nil {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil {
			return next(c)
		}

		userID := sender.ID
		if m.rules.Exempt(userID) {
			return next(c)
		}

		limit, window := m.rules.PerUser()

		ctx := handlers.Context(c)
		key := fmt.Sprintf("user:%d", userID)
		result, err := m.limiter.Check(ctx, key, limit, window)
		if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
			m.log.WarnContext(ctx, "rate limiter error", slog.Int64("user_id", userID), slog.Any("error", err))
			return next(c)
		}

		if result != nil && result.Allowed {
			return next(c)
		}

		retryAfter := 1
		if result != nil {
			if wait := result.ResetAt.Sub(m.now()); wait > 0 {
				retryAfter = int(math.Ceil(wait.Seconds()))
			}
		}

		m.log.WarnContext(ctx, "rate limit exceeded", slog.Int64("user_id", userID), slog.Int("retry_after", retryAfter))
		metrics.RecordError(string(apperrors.KindRateLimit), string(apperrors.SeverityLow))

		text := m.catalog.Translator(sender.LanguageCode).T("errors.rate_limit", retryAfter)
		if c.Callback() != nil {
			return c.Respond(&telebot.CallbackResponse{Text: text})
		}
		return c.Send(text)
	}
}
