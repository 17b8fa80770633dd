// Package ratelimit implements a sliding-window request limiter on Redis
// sorted sets.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"travelblog/internal/config"
)

const keyPrefix = "ratelimit:"

// slidingWindow trims entries older than the window, counts the rest and
// records the current hit only when it fits. Running it as one script keeps
// concurrent requests from overshooting the limit.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter struct {
	client *redis.Client
	now    func() time.Time
}

func New(client *redis.Client) *Limiter {
	return &Limiter{client: client, now: time.Now}
}

// Allow records one hit for key in bucket and reports whether it is within
// the policy.
func (l *Limiter) Allow(ctx context.Context, bucket, key string, policy config.RateLimitPolicy) (Decision, error) {
	now := l.now().UnixMilli()
	windowMs := policy.Window.Milliseconds()
	if windowMs <= 0 || policy.Limit <= 0 {
		return Decision{Allowed: true, Limit: policy.Limit}, nil
	}

	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	res, err := slidingWindow.Run(ctx, l.client, []string{keyPrefix + bucket + ":" + key}, now, windowMs, policy.Limit, member).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", bucket, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected script reply %v", bucket, res)
	}

	remaining := policy.Limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     policy.Limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(res[2]).UTC(),
	}, nil
}
