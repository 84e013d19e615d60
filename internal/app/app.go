// Package app wires the mood bot together and owns its lifetime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/bot"
	"github.com/Proton-105/mood-bot/internal/conversation"
	"github.com/Proton-105/mood-bot/internal/database"
	"github.com/Proton-105/mood-bot/internal/domain"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
	"github.com/Proton-105/mood-bot/internal/health"
	"github.com/Proton-105/mood-bot/internal/i18n"
	"github.com/Proton-105/mood-bot/internal/idempotency"
	"github.com/Proton-105/mood-bot/internal/jobs"
	jobhandlers "github.com/Proton-105/mood-bot/internal/jobs/handlers"
	"github.com/Proton-105/mood-bot/internal/lifecycle"
	"github.com/Proton-105/mood-bot/internal/middleware"
	"github.com/Proton-105/mood-bot/internal/ratelimit"
	"github.com/Proton-105/mood-bot/internal/scheduler"
	"github.com/Proton-105/mood-bot/internal/state"
	"github.com/Proton-105/mood-bot/internal/store"
	"github.com/Proton-105/mood-bot/pkg/config"
	"github.com/Proton-105/mood-bot/pkg/graceful"
	"github.com/Proton-105/mood-bot/pkg/metrics"
	"github.com/Proton-105/mood-bot/pkg/redis"
)

const (
	turnTTL             = 7 * 24 * time.Hour
	turnCleanupInterval = time.Hour
	limiterMaxAge       = 10 * time.Minute
	limiterCleanup      = 5 * time.Minute
	stateCollectEvery   = 15 * time.Second
	sentryFlushTimeout  = 2 * time.Second
)

// Option tweaks how the App starts.
type Option func(*App)

// WithOfflineTelegram skips getMe, the command menu and the update poller. Outgoing calls still
// go to the API.
func WithOfflineTelegram() Option {
	return func(a *App) { a.offline = true }
}

// App is the process-lifetime dependency container.
type App struct {
	cfg     *config.Config
	viper   *viper.Viper
	log     *slog.Logger
	offline bool

	store      store.Store
	redis      *goredis.Client
	turns      state.StateMachine
	protocol   *conversation.Protocol
	dispatcher jobs.Dispatcher
	scheduler  *scheduler.Scheduler
	bot        *bot.Bot
	probes     *lifecycle.Probes
	shutdown   *lifecycle.Shutdown

	fireAt     domain.ClockTime
	background context.CancelFunc
	wg         sync.WaitGroup
	polling    bool
}

func New(cfg *config.Config, v *viper.Viper, log *slog.Logger, opts ...Option) *App {
	if log == nil {
		log = slog.Default()
	}

	a := &App{
		cfg:      cfg,
		viper:    v,
		log:      log,
		shutdown: lifecycle.NewShutdown(log.With(slog.String("component", "shutdown"))),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.registerHooks()
	return a
}

// Run starts the application, blocks until ctx is done and shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Startup(ctx); err != nil {
		shutdownErr := a.Shutdown(context.Background())
		return errors.Join(err, shutdownErr)
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	return a.Shutdown(context.Background())
}

// Startup opens the store and Redis, migrates, reconciles reminder jobs and starts the
// dispatcher, scheduler, HTTP server and update poller. A store failure is fatal.
func (a *App) Startup(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.background = cancel

	if err := a.openStore(ctx); err != nil {
		return err
	}
	if err := a.openRedis(ctx); err != nil {
		return err
	}

	fireAt, err := domain.ParseClockTime(a.cfg.Notification.Time)
	if err != nil {
		return fmt.Errorf("notification time: %w", err)
	}
	a.fireAt = fireAt

	catalog, err := i18n.Load(a.cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	errHandler := apperrors.NewHandler(a.log, a.cfg.Sentry.Enabled)

	tb, err := bot.NewTelebot(a.cfg.Bot, a.offline)
	if err != nil {
		return apperrors.NewTransportError("get_me", err)
	}

	var (
		turnStorage state.Storage
		idemStore   idempotency.Store
	)
	if a.redis != nil {
		turnStorage = state.NewRedisStorage(a.redis, a.log)
		idemStore = idempotency.NewRedisStore(a.redis, a.log)
	} else {
		turnStorage = state.NewMemoryStorage()
		idemStore = idempotency.NewMemoryStore()
	}
	a.turns = state.NewStateMachine(turnStorage, a.log, a.redis)
	guard := idempotency.NewManager(idemStore, a.log)

	gateway := bot.NewGateway(tb, apperrors.NewCircuitBreaker(apperrors.DefaultBreakerSettings), a.log)
	a.protocol = conversation.New(conversation.Deps{
		Store:    a.store,
		Turns:    a.turns,
		Gateway:  gateway,
		Catalog:  catalog,
		FireTime: a.fireTime,
		Log:      a.log,
	})

	if a.dispatcher, err = a.newDispatcher(guard); err != nil {
		return err
	}

	a.scheduler = scheduler.New(
		scheduler.NewCronRegistry(time.Local, a.log),
		a.store,
		a.dispatcher,
		fireAt,
		a.log,
	)
	a.protocol.SetJobs(a.scheduler)

	if err := a.scheduler.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile reminder jobs: %w", err)
	}

	limits, err := a.rateLimit(bgCtx, catalog)
	if err != nil {
		return err
	}

	a.bot = bot.New(tb, bot.Deps{
		Conversation: a.protocol,
		Store:        a.store,
		Idempotency:  guard,
		RateLimit:    limits,
		Catalog:      catalog,
		ErrHandler:   errHandler,
	}, a.log)

	if err := a.dispatcher.Start(); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	a.scheduler.Start()

	a.probes = lifecycle.NewProbes(a.healthChecker(tb), a.log)
	a.serveHTTP(bgCtx)

	a.goBackground(func() { metrics.NewStateCollector(a.turns, stateCollectEvery).Run(bgCtx) })
	a.goBackground(func() { state.NewCleaner(a.turns, a.log, turnTTL, turnCleanupInterval).Run(bgCtx) })

	config.Watch(a.viper, a.log, a.onConfigChange)

	if !a.offline {
		if err := a.bot.PublishCommands(); err != nil {
			a.log.Warn("command menu not published", slog.Any("error", err))
		}

		a.polling = true
		a.goBackground(a.bot.Start)
	}

	a.probes.SetReady(true)
	a.log.Info("mood bot started",
		slog.String("mode", a.cfg.Bot.Mode),
		slog.String("fire_time", fireAt.String()),
		slog.Int("scheduled_jobs", len(a.scheduler.Jobs())),
	)

	return nil
}

// Shutdown runs the shutdown hooks once, in order.
func (a *App) Shutdown(ctx context.Context) error {
	if a.probes != nil {
		a.probes.SetReady(false)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	return a.shutdown.Execute(ctx)
}

func (a *App) registerHooks() {
	a.shutdown.Register("poller", func(context.Context) error {
		if a.polling {
			a.bot.Stop()
		}
		return nil
	})
	a.shutdown.Register("scheduler", func(ctx context.Context) error {
		if a.scheduler == nil {
			return nil
		}
		return a.scheduler.Stop(ctx)
	})
	a.shutdown.Register("dispatcher", func(ctx context.Context) error {
		if a.dispatcher == nil {
			return nil
		}
		return a.dispatcher.Shutdown(ctx)
	})
	a.shutdown.Register("background", func(ctx context.Context) error {
		if a.background != nil {
			a.background()
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	a.shutdown.Register("store", func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})
	a.shutdown.Register("redis", func(context.Context) error {
		if a.redis == nil {
			return nil
		}
		return a.redis.Close()
	})
	a.shutdown.Register("sentry", func(context.Context) error {
		if a.cfg.Sentry.Enabled {
			sentry.Flush(sentryFlushTimeout)
		}
		return nil
	})
}

func (a *App) openStore(ctx context.Context) error {
	if a.cfg.Database.Driver == "memory" {
		a.log.Warn("using in-memory store, data is lost on exit")
		a.store = store.NewMemory()
		return nil
	}

	pg, err := store.OpenPostgres(a.cfg, a.log)
	if err != nil {
		return err
	}
	a.store = pg

	if err := apperrors.WithRetry(ctx, apperrors.DefaultRetryPolicy, func() error {
		return pg.Ping(ctx)
	}); err != nil {
		return err
	}

	applied, err := database.NewMigrator(pg.DB(), a.log).Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	a.log.Info("database ready", slog.Int("migrations_applied", applied))

	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	if !a.cfg.Redis.Enabled {
		return nil
	}

	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	a.redis = client
	return nil
}

func (a *App) newDispatcher(guard idempotency.Manager) (jobs.Dispatcher, error) {
	if a.cfg.Jobs.Backend != "redis" {
		return jobs.NewLocalDispatcher(a.protocol, guard, a.cfg.Jobs.Workers, a.cfg.Jobs.QueueSize, a.log), nil
	}
	if a.redis == nil {
		return nil, errors.New("jobs backend redis requires redis.enabled")
	}

	opt := asynq.RedisClientOpt{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}

	worker := jobs.NewWorker(opt, a.cfg.Jobs.Workers, a.log)
	worker.RegisterHandler(jobs.TaskTypeSendPrompt, jobhandlers.NewSendPromptHandler(a.protocol, a.log))

	return jobs.NewQueueDispatcher(jobs.NewManager(opt, a.log), worker, a.log), nil
}

// rateLimit returns nil when limiting is disabled. With Redis the sliding window is shared and
// falls back to memory while Redis is unavailable.
func (a *App) rateLimit(ctx context.Context, catalog *i18n.Manager) (*middleware.RateLimitMiddleware, error) {
	if !a.cfg.RateLimit.Enabled {
		return nil, nil
	}

	rules, err := ratelimit.NewRules(a.cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	memory := ratelimit.NewMemoryLimiter(a.log)
	var limiter ratelimit.Limiter = memory
	if a.redis != nil {
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(a.redis, a.log), memory, a.log)
	}

	cleaner := ratelimit.NewCleaner(a.redis, memory, limiterMaxAge, limiterCleanup, a.log)
	a.goBackground(func() { cleaner.Run(ctx) })

	return middleware.NewRateLimitMiddleware(limiter, rules, catalog, a.log), nil
}

func (a *App) healthChecker(tb *telebot.Bot) *health.Checker {
	checker := health.NewChecker(a.log)
	checker.AddCheck("database", health.NewStoreChecker(a.store))
	if a.redis != nil {
		checker.AddCheck("redis", health.NewRedisChecker(a.redis))
	}
	if !a.offline {
		checker.AddCheck("telegram", health.NewTelegramChecker(tb))
	}
	return checker
}

func (a *App) serveHTTP(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", a.probes.ReadinessHandler())
	mux.Handle("/livez", a.probes.LivenessHandler())

	srv := graceful.NewServer(a.log, &http.Server{
		Addr:              a.cfg.Server.Port,
		Handler:           middleware.New(a.log)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}, a.cfg.Server.ShutdownTimeout)

	a.goBackground(func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			a.log.Error("http server stopped", slog.Any("error", err))
		}
	})
}

func (a *App) onConfigChange(cfg *config.Config) {
	at, err := domain.ParseClockTime(cfg.Notification.Time)
	if err != nil {
		a.log.Error("notification time rejected", slog.String("value", cfg.Notification.Time), slog.Any("error", err))
		return
	}
	if at == a.scheduler.FireTime() {
		return
	}

	if err := a.scheduler.Reschedule(at); err != nil {
		a.log.Error("reschedule failed", slog.String("fire_time", at.String()), slog.Any("error", err))
		return
	}
	a.log.Info("reminders rescheduled", slog.String("fire_time", at.String()))
}

func (a *App) fireTime() domain.ClockTime {
	if a.scheduler == nil {
		return a.fireAt
	}
	return a.scheduler.FireTime()
}

func (a *App) goBackground(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}
