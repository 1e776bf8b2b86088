package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix is the Redis key prefix for session data.
const sessionKeyPrefix = "session:"

// SessionStore is the expiring key-value mapping from session token to
// UserSession. Every write carries a TTL so abandoned sessions disappear on
// their own.
type SessionStore interface {
	// Get returns the session for id, or (nil, nil) when the key is missing,
	// expired, or holds data that fails validation. An error means the store
	// itself could not be reached.
	Get(ctx context.Context, id string) (*UserSession, error)

	// Set writes the session and (re)starts its TTL.
	Set(ctx context.Context, id string, session UserSession, ttl time.Duration) error

	// Refresh restarts the TTL of an existing session without rewriting it.
	// It reports false, and creates nothing, when the key is gone.
	Refresh(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// Delete removes the session. Deleting a missing key is not an error.
	Delete(ctx context.Context, id string) error

	// TTL returns the remaining lifetime, or 0 when the key is missing.
	TTL(ctx context.Context, id string) (time.Duration, error)
}

// redisSessionStore implements SessionStore on Redis.
type redisSessionStore struct {
	rdb *redis.Client
}

// NewRedisSessionStore creates a session store backed by rdb.
func NewRedisSessionStore(rdb *redis.Client) SessionStore {
	return &redisSessionStore{rdb: rdb}
}

// Get implements SessionStore.
func (s *redisSessionStore) Get(ctx context.Context, id string) (*UserSession, error) {
	data, err := s.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from redis: %w", err)
	}

	session, err := decodeSession(data)
	if err != nil {
		slog.Warn("discarding malformed session record", slog.Any("error", err))
		return nil, nil
	}
	return session, nil
}

// Set implements SessionStore.
func (s *redisSessionStore) Set(ctx context.Context, id string, session UserSession, ttl time.Duration) error {
	if err := validateSession(&session); err != nil {
		return fmt.Errorf("refusing to store session: %w", err)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	if err := s.rdb.Set(ctx, sessionKeyPrefix+id, data, ttl).Err(); err != nil {
		return fmt.Errorf("storing session in redis: %w", err)
	}
	return nil
}

// Refresh implements SessionStore. EXPIRE is a single command that only
// touches an existing key, so a logout racing the renewal stays revoked.
func (s *redisSessionStore) Refresh(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.Expire(ctx, sessionKeyPrefix+id, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("refreshing session ttl: %w", err)
	}
	return ok, nil
}

// Delete implements SessionStore.
func (s *redisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}

// TTL implements SessionStore.
func (s *redisSessionStore) TTL(ctx context.Context, id string) (time.Duration, error) {
	ttl, err := s.rdb.TTL(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return 0, fmt.Errorf("reading session ttl: %w", err)
	}
	// Redis reports -2 for a missing key and -1 for no expiry.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// decodeSession parses and validates a stored session record. Unknown
// fields are ignored; wrong types, a missing id, or an unknown role are
// errors.
func decodeSession(data []byte) (*UserSession, error) {
	var session UserSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	if err := validateSession(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

func validateSession(s *UserSession) error {
	if s.ID == "" {
		return errors.New("session has no user id")
	}
	if !s.Role.IsPrivileged() {
		return fmt.Errorf("session has invalid role %q", s.Role)
	}
	return nil
}
