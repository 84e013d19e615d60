package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userLockKeyPattern = "mood:turn:lock:%d"
	lockTTL            = 5 * time.Second
	lockWait           = 500 * time.Millisecond
	lockRetryInterval  = 25 * time.Millisecond
)

var (
	// ErrInvalidTransition indicates that a requested transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateNotFound indicates that a user has no turn record.
	ErrStateNotFound = errors.New("user state not found")
	// ErrStateLocked indicates that a concurrent operation already holds the lock.
	ErrStateLocked = errors.New("state is locked, try again later")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// StateMachine guards turn transitions per user.
type StateMachine interface {
	// GetState returns the user's turn; a user without a record is idle.
	GetState(ctx context.Context, userID int64) (*UserState, error)
	// TransitionTo moves the user to newState if allowed, applying mutate to the stored record
	// first, and returns the saved record.
	TransitionTo(ctx context.Context, userID int64, newState State, mutate func(*UserState)) (*UserState, error)
	ClearState(ctx context.Context, userID int64) error
	// ClearIdle removes the turn only if, under the user's lock, it is still idle and was last
	// changed before cutoff.
	ClearIdle(ctx context.Context, userID int64, cutoff time.Time) (bool, error)
	GetAllStates(ctx context.Context) ([]*UserState, error)
}

type machine struct {
	storage     Storage
	log         *slog.Logger
	redisClient *redis.Client
	locks       sync.Map
	lockWait    time.Duration
}

// NewStateMachine creates a turn controller. With a redis client transitions are guarded by a
// short-lived Redis lock, otherwise by an in-process per-user mutex. A held Redis lock is
// retried for up to half a second before ErrStateLocked is returned.
func NewStateMachine(storage Storage, log *slog.Logger, redisClient *redis.Client) StateMachine {
	if log == nil {
		log = slog.Default()
	}

	return &machine{
		storage:     storage,
		log:         log,
		redisClient: redisClient,
		lockWait:    lockWait,
	}
}

func (m *machine) GetState(ctx context.Context, userID int64) (*UserState, error) {
	st, err := m.storage.GetState(ctx, userID)
	if errors.Is(err, ErrStateNotFound) {
		return &UserState{UserID: userID, CurrentState: StateIdle}, nil
	}
	return st, err
}

func (m *machine) GetAllStates(ctx context.Context) ([]*UserState, error) {
	return m.storage.GetAllStates(ctx)
}

func (m *machine) TransitionTo(ctx context.Context, userID int64, newState State, mutate func(*UserState)) (*UserState, error) {
	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := m.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}

	from := current.CurrentState
	if from == "" {
		from = StateIdle
	}

	if !IsTransitionAllowed(from, newState) {
		m.log.Warn("invalid state transition", "user_id", userID, "from", from, "to", newState)
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, newState)
	}

	next := *current
	next.UserID = userID
	next.CurrentState = newState
	if mutate != nil {
		mutate(&next)
	}

	if err := m.storage.SetState(ctx, userID, &next); err != nil {
		return nil, err
	}

	transitionRecorder(string(from), string(newState))

	return &next, nil
}

func (m *machine) ClearState(ctx context.Context, userID int64) error {
	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	return m.storage.ClearState(ctx, userID)
}

func (m *machine) ClearIdle(ctx context.Context, userID int64, cutoff time.Time) (bool, error) {
	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, err := m.storage.GetState(ctx, userID)
	if errors.Is(err, ErrStateNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if current.CurrentState != StateIdle || !current.UpdatedAt.Before(cutoff) {
		return false, nil
	}

	if err := m.storage.ClearState(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

func (m *machine) lock(ctx context.Context, userID int64) (func(), error) {
	if m.redisClient == nil {
		value, _ := m.locks.LoadOrStore(userID, &sync.Mutex{})
		mu := value.(*sync.Mutex)
		mu.Lock()
		return mu.Unlock, nil
	}

	key := fmt.Sprintf(userLockKeyPattern, userID)
	deadline := time.Now().Add(m.lockWait)

	for {
		acquired, err := m.redisClient.SetNX(ctx, key, 1, lockTTL).Result()
		if err != nil {
			m.log.Error("failed to acquire user state lock", "user_id", userID, "error", err)
			return nil, err
		}
		if acquired {
			break
		}

		if !time.Now().Before(deadline) {
			m.log.Warn("user state lock already held", "user_id", userID)
			return nil, ErrStateLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		if err := m.redisClient.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			m.log.Error("failed to release user state lock", "user_id", userID, "error", err)
		}
	}, nil
}
