package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// slidingWindow trims expired hits, admits the new one only while under the
// limit, and reports the oldest surviving hit. Scores are Unix milliseconds.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max    = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first > 0 then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// Limiter is a sliding window limiter over Redis sorted sets. Rejected
// attempts are not recorded, so a blocked client regains access one window
// after its oldest accepted attempt.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow records a hit for key when it fits in the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	res, err := slidingWindow.Run(ctx, l.Client,
		[]string{l.Prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{Limit: limit, ResetAt: now.Add(window)}, fmt.Errorf("sliding window %q: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{Limit: limit, ResetAt: now.Add(window)}, fmt.Errorf("sliding window %q: unexpected reply %v", key, res)
	}

	count := int(res[1])
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: max(0, limit-count),
		ResetAt:   time.UnixMilli(res[2]).Add(window),
	}, nil
}

// Reset forgets every hit recorded for key.
func (l Limiter) Reset(ctx context.Context, key string) error {
	if l.Client == nil {
		return nil
	}
	return l.Client.Del(ctx, l.Prefix+key).Err()
}
