package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"keyguard/internal/metrics"
	"keyguard/internal/utils"
)

// slidingWindowScript trims expired entries, provisionally adds the current
// request, and removes it again when the window is over its limit.
// Returns {allowed, count, oldest score or ""}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = ARGV[1]
local window_start = ARGV[2]
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl_ms = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. window_start)
redis.call('ZADD', key, now, member)
local count = redis.call('ZCARD', key)
local allowed = 1
if count > limit then
	redis.call('ZREM', key, member)
	count = count - 1
	allowed = 0
end
redis.call('PEXPIRE', key, ttl_ms)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest == 0 then
	return {allowed, count, ''}
end
return {allowed, count, oldest[2]}
`)

// SlidingWindowLimiter implements Limiter on Redis sorted sets. Scores are
// request timestamps in microseconds, members are per-request ids.
type SlidingWindowLimiter struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	now     func() time.Time
	metrics metrics.Metrics
	logger  *utils.Logger
}

// Option configures a SlidingWindowLimiter
type Option func(*SlidingWindowLimiter)

// WithTimeout bounds each Redis round trip; 0 disables the bound
func WithTimeout(timeout time.Duration) Option {
	return func(l *SlidingWindowLimiter) { l.timeout = timeout }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

// WithMetrics records fail-open events
func WithMetrics(m metrics.Metrics) Option {
	return func(l *SlidingWindowLimiter) { l.metrics = m }
}

// NewSlidingWindowLimiter creates a limiter whose keys live under prefix
func NewSlidingWindowLimiter(client redis.UniversalClient, prefix string, opts ...Option) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{
		client:  client,
		prefix:  prefix,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
		metrics: metrics.NewNoopMetrics(),
		logger:  utils.NewLogger("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Prefix returns the key prefix, also used as the metrics scope
func (l *SlidingWindowLimiter) Prefix() string {
	return l.prefix
}

func (l *SlidingWindowLimiter) key(identifier string, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%d", l.prefix, identifier, int64(window/time.Second))
}

func (l *SlidingWindowLimiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// Check implements Limiter. A limit below 1 means unlimited.
func (l *SlidingWindowLimiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	now := l.now()

	if window < time.Second {
		return l.failOpen(identifier, limit, window, now, ErrInvalidWindow)
	}
	if limit < 1 {
		return Result{Allowed: true, Limit: limit, Remaining: -1, ResetAt: now.Add(window)}
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	nowMicros := now.UnixMicro()
	windowMicros := window.Microseconds()
	member := uuid.NewString()
	ttl := (window + time.Second).Milliseconds()

	res, err := slidingWindowScript.Run(ctx, l.client, []string{l.key(identifier, window)},
		strconv.FormatInt(nowMicros, 10),
		strconv.FormatInt(nowMicros-windowMicros, 10),
		limit,
		member,
		strconv.FormatInt(ttl, 10),
	).Slice()
	if err != nil {
		return l.failOpen(identifier, limit, window, now, fmt.Errorf("rate limit check failed: %w", err))
	}

	allowed, count, oldest, err := parseScriptResult(res)
	if err != nil {
		return l.failOpen(identifier, limit, window, now, err)
	}

	result := Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(0, limit-count),
		Count:     count,
		ResetAt:   resetAt(now, window, oldest),
	}
	if allowed {
		result.Member = member
	} else {
		result.RetryAfter = retryAfter(now, result.ResetAt)
	}
	return result
}

// Status implements Limiter. It reads the window without trimming or adding.
func (l *SlidingWindowLimiter) Status(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	now := l.now()

	if window < time.Second {
		return l.failOpen(identifier, limit, window, now, ErrInvalidWindow)
	}
	if limit < 1 {
		return Result{Allowed: true, Limit: limit, Remaining: -1, ResetAt: now.Add(window)}
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	key := l.key(identifier, window)
	windowStart := strconv.FormatInt(now.UnixMicro()-window.Microseconds(), 10)

	pipe := l.client.Pipeline()
	countCmd := pipe.ZCount(ctx, key, windowStart, "+inf")
	oldestCmd := pipe.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:   windowStart,
		Max:   "+inf",
		Count: 1,
	})
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return l.failOpen(identifier, limit, window, now, fmt.Errorf("rate limit status failed: %w", err))
	}

	count := int(countCmd.Val())
	var oldest *int64
	if entries := oldestCmd.Val(); len(entries) > 0 {
		score := int64(entries[0].Score)
		oldest = &score
	}

	result := Result{
		Allowed:   count < limit,
		Limit:     limit,
		Remaining: max(0, limit-count),
		Count:     count,
		ResetAt:   resetAt(now, window, oldest),
	}
	if !result.Allowed {
		result.RetryAfter = retryAfter(now, result.ResetAt)
	}
	return result
}

// Release implements Limiter
func (l *SlidingWindowLimiter) Release(ctx context.Context, identifier string, window time.Duration, member string) error {
	if member == "" {
		return nil
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.client.ZRem(ctx, l.key(identifier, window), member).Err(); err != nil {
		return fmt.Errorf("rate limit release failed: %w", err)
	}
	return nil
}

// Reset implements Limiter
func (l *SlidingWindowLimiter) Reset(ctx context.Context, identifier string, window time.Duration) error {
	if err := l.client.Del(ctx, l.key(identifier, window)).Err(); err != nil {
		return fmt.Errorf("rate limit reset failed: %w", err)
	}
	return nil
}

func (l *SlidingWindowLimiter) failOpen(identifier string, limit int, window time.Duration, now time.Time, err error) Result {
	l.logger.Error("Rate limiter unavailable, allowing request", "prefix", l.prefix, "identifier", identifier, "error", err)
	l.metrics.RecordRateLimitFailOpen(l.prefix)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(window),
		Err:       err,
	}
}

func parseScriptResult(res []interface{}) (allowed bool, count int, oldest *int64, err error) {
	if len(res) != 3 {
		return false, 0, nil, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}
	flag, ok := res[0].(int64)
	if !ok {
		return false, 0, nil, fmt.Errorf("unexpected rate limit script flag: %T", res[0])
	}
	n, ok := res[1].(int64)
	if !ok {
		return false, 0, nil, fmt.Errorf("unexpected rate limit script count: %T", res[1])
	}
	if s, ok := res[2].(string); ok && s != "" {
		score, parseErr := strconv.ParseFloat(s, 64)
		if parseErr != nil {
			return false, 0, nil, fmt.Errorf("invalid oldest score %q: %w", s, parseErr)
		}
		v := int64(score)
		oldest = &v
	}
	return flag == 1, int(n), oldest, nil
}

func resetAt(now time.Time, window time.Duration, oldestMicros *int64) time.Time {
	if oldestMicros == nil {
		return now.Add(window)
	}
	return time.UnixMicro(*oldestMicros).Add(window)
}

func retryAfter(now, reset time.Time) int {
	wait := reset.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}
