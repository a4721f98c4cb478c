package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"workbridge/internal/auth"
	"workbridge/internal/model"
)

const sessionUserPrefix = "session:user:"

// UserFinder loads a user record from the system of record.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

// SessionUsers resolves the current record of a session's user. Lookups go
// through Redis when a client is configured and fall back to the database.
type SessionUsers struct {
	users UserFinder
	redis RedisClient
	ttl   time.Duration
}

// NewSessionUsers builds the resolver. A nil redis client disables caching.
func NewSessionUsers(users UserFinder, redis RedisClient, ttl time.Duration) *SessionUsers {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SessionUsers{users: users, redis: redis, ttl: ttl}
}

func sessionUserKey(userID string) string {
	return sessionUserPrefix + userID
}

func (s *SessionUsers) LookupUser(ctx context.Context, userID string) (auth.UserRecord, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, sessionUserKey(userID))
		switch {
		case err == nil:
			var record auth.UserRecord
			if jsonErr := json.Unmarshal([]byte(raw), &record); jsonErr == nil {
				return record, nil
			}
			slog.Warn("discarding malformed session user entry", "user_id", userID)
		case !errors.Is(err, ErrKeyNotFound):
			slog.Warn("session user cache read failed", "user_id", userID, "error", err)
		}
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return auth.UserRecord{}, auth.ErrUserGone
	}
	if err != nil {
		return auth.UserRecord{}, fmt.Errorf("lookup session user: %w", err)
	}

	record := auth.UserRecord{ID: user.ID, Email: user.Email, Role: user.Role}

	if s.redis != nil {
		payload, err := json.Marshal(record)
		if err == nil {
			err = s.redis.Set(ctx, sessionUserKey(userID), string(payload), s.ttl)
		}
		if err != nil {
			slog.Warn("session user cache write failed", "user_id", userID, "error", err)
		}
	}

	return record, nil
}

// Invalidate drops the cached record so the next lookup sees role changes
// and deletions immediately.
func (s *SessionUsers) Invalidate(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, sessionUserKey(userID)); err != nil {
		slog.Warn("session user cache invalidation failed", "user_id", userID, "error", err)
	}
}
