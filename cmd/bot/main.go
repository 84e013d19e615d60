package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Proton-105/mood-bot/internal/app"
	"github.com/Proton-105/mood-bot/pkg/config"
	"github.com/Proton-105/mood-bot/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := app.InitSentry(*cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	log.Info("starting mood bot",
		slog.String("env", cfg.AppEnv),
		slog.String("mode", cfg.Bot.Mode),
		slog.String("store", cfg.Database.Driver),
		slog.String("notification_time", cfg.Notification.Time),
	)

	if err := app.New(cfg, v, log).Run(ctx); err != nil {
		log.Error("mood bot stopped with error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("mood bot stopped")
}
