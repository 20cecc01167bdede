package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore handles Redis operations for sessions and per-chat stream locks.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// sessionKey returns the key holding a session token's user ID.
func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// streamLockKey returns the key guarding a chat's in-flight stream.
func streamLockKey(chatID uuid.UUID) string {
	return fmt.Sprintf("chat:%s:stream", chatID)
}

// SaveSession stores a session token with a TTL.
func (s *RedisStore) SaveSession(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	return s.client.Set(ctx, sessionKey(token), userID.String(), ttl).Err()
}

// GetSession resolves a session token to a user ID.
// Returns uuid.Nil with no error when the session does not exist.
func (s *RedisStore) GetSession(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := s.client.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return uuid.Parse(val)
}

// DeleteSession removes a session token.
func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}

// AcquireStreamLock claims the per-chat stream lock. Returns false when a
// stream is already in flight for the chat. The TTL bounds lock leakage if
// the holder dies without releasing.
func (s *RedisStore) AcquireStreamLock(ctx context.Context, chatID uuid.UUID, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, streamLockKey(chatID), time.Now().UnixMilli(), ttl).Result()
}

// ReleaseStreamLock releases the per-chat stream lock.
func (s *RedisStore) ReleaseStreamLock(ctx context.Context, chatID uuid.UUID) error {
	return s.client.Del(ctx, streamLockKey(chatID)).Err()
}
