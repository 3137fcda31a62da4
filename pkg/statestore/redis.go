package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// reserveScript trims the sorted set to the window, then adds now when the
// remaining count is below the limit. Scores are unix milliseconds.
// Returns {allowed, count, oldestMillis}.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisStore implements Store and WindowStore on Redis so every instance
// shares the same counters and tokens
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore namespaces every key with prefix
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (WindowState, error) {
	res, err := reserveScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), window.Milliseconds(), limit, fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()),
	).Result()
	if err != nil {
		return WindowState{}, fmt.Errorf("redis reserve failed: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return WindowState{}, fmt.Errorf("unexpected reserve reply %v", res)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	oldest, _ := vals[2].(int64)

	return WindowState{
		Allowed: allowed == 1,
		Count:   int(count),
		Oldest:  time.UnixMilli(oldest).UTC(),
	}, nil
}

// Sweep is a no-op; Redis expires keys through TTL
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}
