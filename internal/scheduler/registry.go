package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Proton-105/mood-bot/internal/domain"
)

// Registry holds recurring daily jobs by key. A durable or distributed scheduler can replace
// CronRegistry behind this interface.
type Registry interface {
	// Add registers fn to run daily at the given time. Adding an existing key with the same time
	// is a no-op; with a different time the old job is replaced.
	Add(key string, at domain.ClockTime, fn func()) error
	// Cancel removes the job and reports whether it existed.
	Cancel(key string) bool
	Keys() []string
	Start()
	// Stop halts firing; the returned context is done once running jobs finish.
	Stop() context.Context
}

type cronEntry struct {
	id cron.EntryID
	at domain.ClockTime
}

// CronRegistry is the in-process Registry built on robfig/cron. Jobs are lost on restart.
type CronRegistry struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cronEntry
}

func NewCronRegistry(loc *time.Location, log *slog.Logger) *CronRegistry {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}

	cronLog := cronLogger{log: log.With(slog.String("component", "cron"))}

	return &CronRegistry{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		entries: make(map[string]cronEntry),
	}
}

func (r *CronRegistry) Add(key string, at domain.ClockTime, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		if existing.at == at {
			return nil
		}
		r.cron.Remove(existing.id)
		delete(r.entries, key)
	}

	id, err := r.cron.AddFunc(at.CronSpec(), fn)
	if err != nil {
		return fmt.Errorf("register job %s at %s: %w", key, at, err)
	}

	r.entries[key] = cronEntry{id: id, at: at}
	return nil
}

func (r *CronRegistry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return false
	}

	r.cron.Remove(entry.id)
	delete(r.entries, key)
	return true
}

func (r *CronRegistry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Next returns the next fire time of key; zero before Start.
func (r *CronRegistry) Next(key string) (time.Time, bool) {
	r.mu.Lock()
	entry, ok := r.entries[key]
	r.mu.Unlock()

	if !ok {
		return time.Time{}, false
	}
	return r.cron.Entry(entry.id).Next, true
}

func (r *CronRegistry) Start() {
	r.cron.Start()
}

func (r *CronRegistry) Stop() context.Context {
	return r.cron.Stop()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
