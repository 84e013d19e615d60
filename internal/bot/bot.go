// Package bot connects the conversation protocol to Telegram.
package bot

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
	"github.com/Proton-105/mood-bot/internal/i18n"
	"github.com/Proton-105/mood-bot/internal/idempotency"
	"github.com/Proton-105/mood-bot/internal/middleware"
	"github.com/Proton-105/mood-bot/internal/store"
	"github.com/Proton-105/mood-bot/pkg/config"
)

// Deps are the collaborators of the update pipeline. Idempotency and RateLimit are optional.
type Deps struct {
	Conversation handlers.Conversation
	Store        store.Store
	Idempotency  idempotency.Manager
	RateLimit    *middleware.RateLimitMiddleware
	Catalog      *i18n.Manager
	ErrHandler   *apperrors.Handler
}

// Bot wraps telebot.Bot with the router that handles updates.
type Bot struct {
	telebot *telebot.Bot
	router  *Router
	catalog *i18n.Manager
	log     *slog.Logger
}

// NewTelebot builds the Telegram client for polling or webhook mode. It calls getMe unless
// offline is set.
func NewTelebot(cfg config.BotConfig, offline bool) (*telebot.Bot, error) {
	settings := telebot.Settings{
		Token:   cfg.Token,
		Offline: offline,
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}
	return tb, nil
}

func New(tb *telebot.Bot, deps Deps, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}

	b := &Bot{
		telebot: tb,
		router:  NewRouter(log),
		catalog: deps.Catalog,
		log:     log,
	}

	b.setupRouter(deps)

	if tb != nil {
		if deps.RateLimit != nil {
			tb.Use(deps.RateLimit.Handle)
		}
		tb.Handle(telebot.OnText, b.router.Route)
		tb.Handle(telebot.OnCallback, b.router.Route)
	}

	return b
}

// Start runs the update loop and blocks until Stop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying client for health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Router returns the update router.
func (b *Bot) Router() *Router {
	return b.router
}

// PublishCommands sets the client command menu for every loaded language.
func (b *Bot) PublishCommands() error {
	if b.telebot == nil || b.catalog == nil {
		return nil
	}

	for _, lang := range b.catalog.Languages() {
		if err := b.telebot.SetCommands(commandMenu(b.catalog.Translator(lang)), lang); err != nil {
			return fmt.Errorf("set commands for %s: %w", lang, err)
		}
	}

	return b.telebot.SetCommands(commandMenu(b.catalog.Translator(b.catalog.DefaultLang())))
}

func commandMenu(tr i18n.Translator) []telebot.Command {
	commands := make([]telebot.Command, 0, len(menuCommands))
	for _, cmd := range menuCommands {
		commands = append(commands, telebot.Command{Text: cmd.name, Description: tr.T(cmd.key)})
	}
	return commands
}

func (b *Bot) setupRouter(deps Deps) {
	b.router.Use(RecoveryMiddleware(b.log, deps.ErrHandler, deps.Catalog))
	b.router.Use(ErrorBoundaryMiddleware(deps.ErrHandler, deps.Catalog, b.log))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(middleware.Metrics)
	b.router.Use(middleware.Idempotency(deps.Idempotency, b.log))
	b.router.Use(TouchMiddleware(deps.Store, b.log))

	conv := deps.Conversation
	b.router.RegisterCommand(CommandStart, handlers.NewStartHandler(conv))
	b.router.RegisterCommand(CommandStop, handlers.NewStopHandler(conv))
	b.router.RegisterCommand(CommandStats, handlers.NewStatsHandler(conv))
	b.router.RegisterCommand(CommandHelp, handlers.NewHelpHandler(conv))
	b.router.RegisterCallback(CallbackMood, handlers.NewMoodHandler(conv))
	b.router.SetDefault(handlers.NewTextHandler(conv))
}
