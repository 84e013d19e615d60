package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/mood-bot/internal/idempotency"
	"github.com/Proton-105/mood-bot/internal/scheduler"
	"github.com/Proton-105/mood-bot/pkg/logger"
)

var (
	ErrQueueFull        = errors.New("prompt queue is full")
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
)

// PromptSender delivers the daily prompt to one user.
type PromptSender interface {
	SendScheduledPrompt(ctx context.Context, userID int64) error
}

// Dispatcher accepts fired jobs without blocking the caller.
type Dispatcher interface {
	scheduler.Dispatcher
	Start() error
	Shutdown(ctx context.Context) error
}

type promptRequest struct {
	ctx          context.Context
	userID       int64
	scheduledFor time.Time
}

// LocalDispatcher delivers prompts through an in-process worker pool. Each user gets at most one
// prompt per day, tracked with an idempotency claim.
type LocalDispatcher struct {
	sender PromptSender
	guard  idempotency.Manager
	log    *slog.Logger

	workers int
	queue   chan promptRequest
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewLocalDispatcher(sender PromptSender, guard idempotency.Manager, workers, queueSize int, log *slog.Logger) *LocalDispatcher {
	if log == nil {
		log = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	return &LocalDispatcher{
		sender:  sender,
		guard:   guard,
		log:     log.With(slog.String("component", "dispatcher")),
		workers: workers,
		queue:   make(chan promptRequest, queueSize),
	}
}

func (d *LocalDispatcher) Start() error {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return nil
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, userID int64, scheduledFor time.Time) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	key := idempotency.PromptKey(userID, scheduledFor)
	if err := d.guard.Claim(ctx, key, promptRetention); err != nil {
		if errors.Is(err, idempotency.ErrAlreadyClaimed) {
			return fmt.Errorf("%s: %w", key, scheduler.ErrDuplicateDispatch)
		}
		return err
	}

	select {
	case d.queue <- promptRequest{ctx: context.WithoutCancel(ctx), userID: userID, scheduledFor: scheduledFor}:
		return nil
	default:
		if err := d.guard.Release(ctx, key); err != nil {
			d.log.WarnContext(ctx, "claim not released", slog.String("key", key), slog.Any("error", err))
		}
		return ErrQueueFull
	}
}

// Shutdown stops accepting prompts and waits for queued ones until ctx is done.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *LocalDispatcher) work() {
	defer d.wg.Done()

	for req := range d.queue {
		d.deliver(req)
	}
}

func (d *LocalDispatcher) deliver(req promptRequest) {
	ctx := req.ctx
	if logger.CorrelationIDFromContext(ctx) == "" {
		ctx = logger.WithCorrelationID(ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "prompt delivery panicked", slog.Int64("user_id", req.userID), slog.Any("panic", r))
		}
	}()

	if err := d.sender.SendScheduledPrompt(ctx, req.userID); err != nil {
		d.log.ErrorContext(ctx, "scheduled prompt not delivered",
			slog.Int64("user_id", req.userID),
			slog.Time("scheduled_for", req.scheduledFor),
			slog.Any("error", err),
		)
	}
}

// QueueDispatcher enqueues prompts to asynq; Redis rejects a second task for the same user and
// day. A Worker runs SendPromptHandler for the queued tasks.
type QueueDispatcher struct {
	manager Manager
	worker  Worker
	log     *slog.Logger
}

func NewQueueDispatcher(manager Manager, worker Worker, log *slog.Logger) *QueueDispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &QueueDispatcher{manager: manager, worker: worker, log: log}
}

func (d *QueueDispatcher) Start() error {
	if d.worker == nil {
		return nil
	}
	return d.worker.Start()
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, userID int64, scheduledFor time.Time) error {
	task, err := NewSendPromptTask(userID, scheduledFor)
	if err != nil {
		return err
	}

	if _, err := d.manager.Enqueue(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return fmt.Errorf("%s: %w", idempotency.PromptKey(userID, scheduledFor), scheduler.ErrDuplicateDispatch)
		}
		return fmt.Errorf("enqueue prompt for %d: %w", userID, err)
	}

	return nil
}

func (d *QueueDispatcher) Shutdown(context.Context) error {
	if d.worker != nil {
		d.worker.Shutdown()
	}
	return d.manager.Close()
}
