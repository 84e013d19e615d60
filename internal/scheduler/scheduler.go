// Package scheduler keeps one daily notification job per opted-in user.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Proton-105/mood-bot/internal/domain"
	"github.com/Proton-105/mood-bot/pkg/logger"
	"github.com/Proton-105/mood-bot/pkg/metrics"
)

// ErrDuplicateDispatch is returned by a Dispatcher that already handled the same user and
// scheduled instant.
var ErrDuplicateDispatch = errors.New("prompt already dispatched")

// Dispatcher hands a fired job over to prompt delivery without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID int64, scheduledFor time.Time) error
}

// UserSource lists the users that should have a job.
type UserSource interface {
	ListNotifiableUsers(ctx context.Context) ([]int64, error)
}

type Scheduler struct {
	registry   Registry
	users      UserSource
	dispatcher Dispatcher
	log        *slog.Logger
	now        func() time.Time

	// mu serializes registry changes so reconciliation and opt-in/out never interleave.
	mu sync.Mutex
	at domain.ClockTime
}

func New(registry Registry, users UserSource, dispatcher Dispatcher, at domain.ClockTime, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{
		registry:   registry,
		users:      users,
		dispatcher: dispatcher,
		log:        log.With(slog.String("component", "scheduler")),
		now:        time.Now,
		at:         at,
	}
}

// Reconcile makes the job set equal to the notifiable users: stale jobs are cancelled and
// missing ones added. A failed user listing leaves the registry untouched.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	ids, err := s.users.ListNotifiableUsers(ctx)
	if err != nil {
		return fmt.Errorf("reconcile jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	cancelled := 0
	for _, key := range s.registry.Keys() {
		userID, ok := UserFromJobKey(key)
		if ok {
			if _, keep := want[userID]; keep {
				continue
			}
		}
		if s.registry.Cancel(key) {
			cancelled++
		}
	}

	for _, id := range ids {
		if err := s.addLocked(id); err != nil {
			return err
		}
	}

	s.updateGaugeLocked()
	s.log.InfoContext(ctx, "jobs reconciled",
		slog.Int("scheduled", len(ids)),
		slog.Int("cancelled", cancelled),
		slog.String("fire_time", s.at.String()),
	)

	return nil
}

// Enable installs the user's job. Calling it again is a no-op.
func (s *Scheduler) Enable(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.addLocked(userID); err != nil {
		return err
	}

	s.updateGaugeLocked()
	s.log.DebugContext(ctx, "job enabled", slog.Int64("user_id", userID))
	return nil
}

// Disable cancels the user's future firings. A dispatch already underway is not interrupted.
func (s *Scheduler) Disable(ctx context.Context, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.registry.Cancel(JobKey(userID))
	s.updateGaugeLocked()
	s.log.DebugContext(ctx, "job disabled", slog.Int64("user_id", userID), slog.Bool("existed", removed))
	return removed
}

// Reschedule moves every job to a new daily time.
func (s *Scheduler) Reschedule(at domain.ClockTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at == s.at {
		return nil
	}

	previous := s.at
	s.at = at

	var errs []error
	for _, key := range s.registry.Keys() {
		userID, ok := UserFromJobKey(key)
		if !ok {
			continue
		}
		if err := s.addLocked(userID); err != nil {
			errs = append(errs, err)
		}
	}

	s.log.Info("jobs rescheduled", slog.String("from", previous.String()), slog.String("to", at.String()))
	return errors.Join(errs...)
}

func (s *Scheduler) HasJob(userID int64) bool {
	key := JobKey(userID)
	for _, k := range s.registry.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Jobs returns the users that currently have a job, ascending.
func (s *Scheduler) Jobs() []int64 {
	keys := s.registry.Keys()
	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		if id, ok := UserFromJobKey(key); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Scheduler) FireTime() domain.ClockTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at
}

func (s *Scheduler) Start() {
	s.registry.Start()
	s.log.Info("scheduler started", slog.String("fire_time", s.FireTime().String()))
}

// Stop halts firing and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.registry.Stop()

	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) addLocked(userID int64) error {
	return s.registry.Add(JobKey(userID), s.at, func() { s.fire(userID) })
}

func (s *Scheduler) updateGaugeLocked() {
	metrics.SetScheduledJobs(len(s.registry.Keys()))
}

// fire runs on the registry's goroutine and must return quickly. Failures are logged and the
// job stays registered for the next day.
func (s *Scheduler) fire(userID int64) {
	ctx := logger.WithCorrelationID(context.Background())
	scheduledFor := s.now().Truncate(time.Minute)

	err := s.dispatcher.Dispatch(ctx, userID, scheduledFor)
	switch {
	case err == nil:
		metrics.RecordJobFiring("dispatched")
	case errors.Is(err, ErrDuplicateDispatch):
		metrics.RecordJobFiring("duplicate")
		s.log.WarnContext(ctx, "duplicate job firing ignored",
			slog.Int64("user_id", userID),
			slog.Time("scheduled_for", scheduledFor),
		)
	default:
		metrics.RecordJobFiring("failed")
		s.log.ErrorContext(ctx, "prompt dispatch failed",
			slog.Int64("user_id", userID),
			slog.Time("scheduled_for", scheduledFor),
			slog.Any("error", err),
		)
	}
}
