package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"task-tracker/tasks-service/logging"
	"task-tracker/tasks-service/utils"

	"github.com/redis/go-redis/v9"
)

// slidingWindow admits a request when fewer than limit entries fall inside the window.
// Returns {allowed, remaining, resetAtMs}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)

	if current < limit then
		local counter = redis.call('INCR', key .. ':counter')
		redis.call('ZADD', key, now, now .. ':' .. counter)
		local expire_seconds = math.ceil(window_ms / 1000)
		redis.call('EXPIRE', key, expire_seconds)
		redis.call('EXPIRE', key .. ':counter', expire_seconds)
		return {1, limit - current - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset_at = 0
	if oldest and #oldest >= 2 then
		reset_at = tonumber(oldest[2]) + window_ms
	end
	return {0, 0, reset_at}
`)

type LimitResult struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Limiter is a per-key sliding window counter kept in Redis.
type Limiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int64
	window    time.Duration
}

func NewLimiter(client *redis.Client, keyPrefix string, limit int64, window time.Duration) *Limiter {
	return &Limiter{client: client, keyPrefix: keyPrefix, limit: limit, window: window}
}

func (l *Limiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	now := time.Now()
	res, err := slidingWindow.Run(ctx, l.client, []string{l.keyPrefix + key},
		now.UnixMilli(), now.Add(-l.window).UnixMilli(), l.limit, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return LimitResult{}, fmt.Errorf("redis script error: %w", err)
	}
	if len(res) != 3 {
		return LimitResult{}, fmt.Errorf("unexpected Redis response length: %d", len(res))
	}

	out := LimitResult{Allowed: res[0] == 1, Remaining: res[1], ResetAt: now.Add(l.window)}
	if res[2] > 0 {
		out.ResetAt = time.UnixMilli(res[2])
	}
	return out, nil
}

// RateLimit throttles each authenticated caller, falling back to the client address.
// A Redis failure lets the request through.
func RateLimit(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if caller, ok := CallerFromContext(r.Context()); ok {
				key = caller.ID.Hex()
			}

			result, err := l.Allow(r.Context(), key)
			if err != nil {
				logging.Logger.Errorf("Event ID: RATE_LIMIT_CHECK_FAILED, Description: Allowing request for %s: %v", key, err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				logging.Logger.Warnf("Event ID: RATE_LIMIT_EXCEEDED, Description: Rate limit exceeded for %s", key)
				retry := time.Until(result.ResetAt).Round(time.Second)
				if retry < time.Second {
					retry = time.Second
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				utils.WriteError(w, http.StatusTooManyRequests, "Too many requests", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
