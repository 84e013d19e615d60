// Package store persists users and their mood log.
package store

import (
	"context"
	"errors"

	"github.com/Proton-105/mood-bot/internal/domain"
)

// ErrUserNotFound is returned by GetUser for an unknown id.
var ErrUserNotFound = errors.New("user not found")

// Store is safe for concurrent use. Mutating operations return *errors.AppError values of kind
// store_write or invalid_input; ComputeStats never fails and degrades to zero averages.
type Store interface {
	// UpsertUser creates the user or merges display fields and bumps last_activity.
	UpsertUser(ctx context.Context, profile domain.Profile) error
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	// RecordMood appends an entry to the user's log.
	RecordMood(ctx context.Context, userID int64, value domain.MoodValue) error
	ListMoods(ctx context.Context, userID int64) ([]domain.MoodEntry, error)
	ComputeStats(ctx context.Context, userID int64) domain.Stats
	// ListNotifiableUsers returns ids with notifications enabled in ascending order.
	ListNotifiableUsers(ctx context.Context) ([]int64, error)
	// SetNotificationPreference creates the user row when missing.
	SetNotificationPreference(ctx context.Context, userID int64, enabled bool) error
	Ping(ctx context.Context) error
	Close() error
}
