package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Proton-105/mood-bot/internal/domain"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
	"github.com/Proton-105/mood-bot/pkg/config"
)

const (
	upsertUserQuery = `
		INSERT INTO users (user_id, username, first_name, last_name, last_activity)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			last_activity = NOW()
	`
	selectUserQuery = `
		SELECT user_id, username, first_name, last_name, notifications_enabled, last_activity
		FROM users
		WHERE user_id = $1
	`
	insertMoodQuery = `
		INSERT INTO mood_entries (user_id, mood_value)
		VALUES ($1, $2)
	`
	selectMoodsQuery = `
		SELECT id, user_id, mood_value, created_at
		FROM mood_entries
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	statsQuery = `
		SELECT
			COALESCE(AVG(mood_value) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days'), 0)::float8,
			COALESCE(AVG(mood_value), 0)::float8
		FROM mood_entries
		WHERE user_id = $1
	`
	notifiableUsersQuery = `
		SELECT user_id
		FROM users
		WHERE notifications_enabled = TRUE
		ORDER BY user_id
	`
	setPreferenceQuery = `
		INSERT INTO users (user_id, notifications_enabled)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			notifications_enabled = EXCLUDED.notifications_enabled
	`
)

// Postgres is the database/sql Store. Every call acquires a pooled connection for the
// duration of one statement.
type Postgres struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenPostgres opens the connection pool described by cfg. The pool is not pinged.
func OpenPostgres(cfg *config.Config, log *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, apperrors.NewStoreConnectError(err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return NewPostgres(db, log), nil
}

func NewPostgres(db *sql.DB, log *slog.Logger) *Postgres {
	if log == nil {
		log = slog.Default()
	}

	return &Postgres{db: db, log: log}
}

// DB exposes the pool for migrations and health checks.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

func (p *Postgres) UpsertUser(ctx context.Context, profile domain.Profile) error {
	if _, err := p.db.ExecContext(ctx, upsertUserQuery,
		profile.ID,
		profile.Username,
		profile.FirstName,
		profile.LastName,
	); err != nil {
		p.log.Error("failed to upsert user", slog.Int64("user_id", profile.ID), slog.Any("error", err))
		return apperrors.NewStoreWriteError("upsert_user", err)
	}

	return nil
}

func (p *Postgres) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var user domain.User
	if err := p.db.QueryRowContext(ctx, selectUserQuery, userID).Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.NotificationsEnabled,
		&user.LastActivity,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, apperrors.NewStoreReadError("get_user", err)
	}

	return &user, nil
}

func (p *Postgres) RecordMood(ctx context.Context, userID int64, value domain.MoodValue) error {
	if !value.Valid() {
		return apperrors.NewInvalidInputError(fmt.Sprintf("mood value %d", value), domain.ErrInvalidMood)
	}

	if _, err := p.db.ExecContext(ctx, insertMoodQuery, userID, int(value)); err != nil {
		p.log.Error("failed to record mood", slog.Int64("user_id", userID), slog.Any("error", err))
		return apperrors.NewStoreWriteError("record_mood", err)
	}

	return nil
}

func (p *Postgres) ListMoods(ctx context.Context, userID int64) ([]domain.MoodEntry, error) {
	rows, err := p.db.QueryContext(ctx, selectMoodsQuery, userID)
	if err != nil {
		return nil, apperrors.NewStoreReadError("list_moods", err)
	}
	defer rows.Close()

	var entries []domain.MoodEntry
	for rows.Next() {
		var (
			entry domain.MoodEntry
			value int
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &value, &entry.CreatedAt); err != nil {
			return nil, apperrors.NewStoreReadError("list_moods", err)
		}
		entry.Value = domain.MoodValue(value)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreReadError("list_moods", err)
	}

	return entries, nil
}

func (p *Postgres) ComputeStats(ctx context.Context, userID int64) domain.Stats {
	var stats domain.Stats
	if err := p.db.QueryRowContext(ctx, statsQuery, userID).Scan(&stats.Weekly, &stats.Monthly); err != nil {
		readErr := apperrors.NewStoreReadError("compute_stats", err)
		p.log.ErrorContext(ctx, "stats unavailable, showing neutral averages",
			slog.Int64("user_id", userID),
			slog.String("code", readErr.Code),
			slog.Any("error", readErr),
		)
		return domain.Stats{}
	}

	return stats
}

func (p *Postgres) ListNotifiableUsers(ctx context.Context) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx, notifiableUsersQuery)
	if err != nil {
		return nil, apperrors.NewStoreReadError("list_notifiable_users", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewStoreReadError("list_notifiable_users", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreReadError("list_notifiable_users", err)
	}

	return ids, nil
}

func (p *Postgres) SetNotificationPreference(ctx context.Context, userID int64, enabled bool) error {
	if _, err := p.db.ExecContext(ctx, setPreferenceQuery, userID, enabled); err != nil {
		p.log.Error("failed to update notification preference",
			slog.Int64("user_id", userID),
			slog.Bool("enabled", enabled),
			slog.Any("error", err),
		)
		return apperrors.NewStoreWriteError("set_notification_preference", err)
	}

	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.db.PingContext(ctx); err != nil {
		return apperrors.NewStoreConnectError(err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
