package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// turnsKey is a hash of user id to JSON-encoded UserState. It has no expiry so an unanswered
// prompt stays pending across restarts.
const turnsKey = "mood:turns"

type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

func NewRedisStorage(client *redis.Client, log *slog.Logger) *RedisStorage {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStorage{client: client, log: log, now: time.Now}
}

// GetState returns ErrStateNotFound when the user has no turn.
func (s *RedisStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	raw, err := s.client.HGet(ctx, turnsKey, turnField(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		s.log.ErrorContext(ctx, "turn read failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("get turn %d: %w", userID, err)
	}

	st := new(UserState)
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode turn %d: %w", userID, err)
	}
	return st, nil
}

func (s *RedisStorage) SetState(ctx context.Context, userID int64, state *UserState) error {
	state.UpdatedAt = s.now().UTC()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode turn %d: %w", userID, err)
	}

	if err := s.client.HSet(ctx, turnsKey, turnField(userID), raw).Err(); err != nil {
		s.log.ErrorContext(ctx, "turn write failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("save turn %d: %w", userID, err)
	}
	return nil
}

func (s *RedisStorage) ClearState(ctx context.Context, userID int64) error {
	if err := s.client.HDel(ctx, turnsKey, turnField(userID)).Err(); err != nil {
		return fmt.Errorf("clear turn %d: %w", userID, err)
	}
	return nil
}

// GetAllStates loads every turn. Entries that do not decode are skipped.
func (s *RedisStorage) GetAllStates(ctx context.Context) ([]*UserState, error) {
	all, err := s.client.HGetAll(ctx, turnsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}

	out := make([]*UserState, 0, len(all))
	for id, raw := range all {
		st := new(UserState)
		if err := json.Unmarshal([]byte(raw), st); err != nil {
			s.log.WarnContext(ctx, "skipping undecodable turn", slog.String("user_id", id), slog.Any("error", err))
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func turnField(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
