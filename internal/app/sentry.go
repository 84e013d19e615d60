package app

import (
	"fmt"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/mood-bot/pkg/config"
)

// InitSentry configures the global Sentry hub. It must run before the logger is built so error
// records can be forwarded.
func InitSentry(cfg config.Config) error {
	if !cfg.Sentry.Enabled {
		return nil
	}

	env := cfg.Sentry.Environment
	if env == "" {
		env = cfg.AppEnv
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      env,
		SampleRate:       cfg.Sentry.SampleRate,
		AttachStacktrace: true,
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	return nil
}
