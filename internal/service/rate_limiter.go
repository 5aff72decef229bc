package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// EventType keys a per-connection admission budget. Each type has its
// own ceiling and rolling window.
type EventType string

const (
	EventTypeMessageSend EventType = "message_send"
	EventTypeTyping      EventType = "typing"
	EventTypePresence    EventType = "presence"
)

// EventLimit is a ceiling within a rolling window.
type EventLimit struct {
	Limit  int
	Window time.Duration
}

// rateLimitScript is a Lua script for sliding window rate limiting
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

// RateBudget is the admission check the chat path consults before
// accepting an event. *RateLimiter satisfies it.
type RateBudget interface {
	Check(ctx context.Context, connectionID string, event EventType) RateLimitResult
}

// RateLimiter enforces per-connection, per-event-type budgets.
type RateLimiter struct {
	client *redis.Client
	limits map[EventType]EventLimit
}

func NewRateLimiter(client *redis.Client, limits map[EventType]EventLimit) *RateLimiter {
	return &RateLimiter{client: client, limits: limits}
}

var _ RateBudget = (*RateLimiter)(nil)

// RateLimitResult reports the outcome of a single admission check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Check decides whether one event of the given type is admitted for the
// connection. Redis failures fail open with a warning: admission
// control protects the transport, it must not take it down.
func (rl *RateLimiter) Check(ctx context.Context, connectionID string, event EventType) RateLimitResult {
	limit, ok := rl.limits[event]
	if !ok {
		return RateLimitResult{Allowed: true}
	}

	now := time.Now().Unix()
	key := fmt.Sprintf("ratelimit:%s:%s", connectionID, event)
	windowSecs := int64(limit.Window.Seconds())

	result, err := rateLimitScript.Run(ctx, rl.client, []string{key}, now, windowSecs, limit.Limit).Int64Slice()
	if err != nil {
		log.Warn().
			Err(err).
			Str("connectionId", connectionID).
			Str("eventType", string(event)).
			Msg("rate limit check failed, allowing request")
		return RateLimitResult{
			Allowed:   true,
			Limit:     limit.Limit,
			Remaining: limit.Limit - 1,
			ResetAt:   time.Unix(now+windowSecs, 0),
		}
	}

	if len(result) != 3 {
		log.Warn().
			Str("connectionId", connectionID).
			Str("eventType", string(event)).
			Msg("unexpected rate limit result, allowing request")
		return RateLimitResult{
			Allowed:   true,
			Limit:     limit.Limit,
			Remaining: limit.Limit - 1,
			ResetAt:   time.Unix(now+windowSecs, 0),
		}
	}

	return RateLimitResult{
		Allowed:   result[0] == 1,
		Limit:     limit.Limit,
		Remaining: int(result[1]),
		ResetAt:   time.Unix(result[2], 0),
	}
}
