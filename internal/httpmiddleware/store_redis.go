package httpmiddleware

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// allowScript prunes the sorted set, then records the hit only when under the limit.
// Running it as one script keeps check-and-record atomic across API instances.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
	local retry = window
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, count, retry}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// RedisStore keeps hit logs as Redis sorted sets scored by millisecond timestamp.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a store on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Allow implements Store.
func (s *RedisStore) Allow(ctx context.Context, key string, window time.Duration, max int, now time.Time) (Result, error) {
	id := uuid.NewString()
	vals, err := allowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), max, id).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("rate limit script: unexpected reply %v", vals)
	}
	res := Result{Allowed: vals[0] == 1, Count: int(vals[1])}
	if res.Allowed {
		res.HitID = id
	} else {
		res.RetryAfter = time.Duration(vals[2]) * time.Millisecond
	}
	return res, nil
}

// Undo implements Store.
func (s *RedisStore) Undo(ctx context.Context, key, hitID string) error {
	if hitID == "" {
		return nil
	}
	return s.client.ZRem(ctx, key, hitID).Err()
}
