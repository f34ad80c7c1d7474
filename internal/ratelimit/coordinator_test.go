package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyWindows(t *testing.T) {
	windows := KeyWindows(10, 100, 1000)

	require.Len(t, windows, 3)
	assert.Equal(t, Window{Name: "minute", Limit: 10, Period: time.Minute}, windows[0])
	assert.Equal(t, Window{Name: "hour", Limit: 100, Period: time.Hour}, windows[1])
	assert.Equal(t, Window{Name: "day", Limit: 1000, Period: 24 * time.Hour}, windows[2])
}

func TestCoordinator_CheckAll(t *testing.T) {
	t.Run("admits when every window admits", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		defer mr.Close()
		defer client.Close()

		c := NewCoordinator(NewSlidingWindowLimiter(client, "api_key_rate_limit"), "api_key", nil)

		results, err := c.CheckAll(context.Background(), "key-1", KeyWindows(5, 50, 500))
		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, r := range results {
			assert.True(t, r.Allowed)
			assert.Equal(t, r.Window.Limit-1, r.Remaining)
		}

		assert.True(t, mr.Exists("api_key_rate_limit:minute:key-1:60"))
		assert.True(t, mr.Exists("api_key_rate_limit:hour:key-1:3600"))
		assert.True(t, mr.Exists("api_key_rate_limit:day:key-1:86400"))
	})

	t.Run("reports first denied window and checks all", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		defer mr.Close()
		defer client.Close()

		c := NewCoordinator(NewSlidingWindowLimiter(client, "rl"), "api_key", nil)
		ctx := context.Background()
		windows := KeyWindows(5, 1, 1)

		_, err := c.CheckAll(ctx, "key-2", windows)
		require.NoError(t, err)

		results, err := c.CheckAll(ctx, "key-2", windows)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRateLimitExceeded))

		var exceeded *ExceededError
		require.True(t, errors.As(err, &exceeded))
		assert.Equal(t, "hour", exceeded.Window)
		assert.Equal(t, 1, exceeded.Limit)
		assert.Greater(t, exceeded.RetryAfter, 0)

		// No short-circuit: the day window was evaluated too
		require.Len(t, results, 3)
		assert.True(t, results[0].Allowed)
		assert.False(t, results[1].Allowed)
		assert.False(t, results[2].Allowed)
	})

	t.Run("denied request consumes no quota in admitting windows", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		defer mr.Close()
		defer client.Close()

		c := NewCoordinator(NewSlidingWindowLimiter(client, "rl"), "api_key", nil)
		ctx := context.Background()
		windows := KeyWindows(100, 1000, 1)

		_, err := c.CheckAll(ctx, "key-3", windows)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			results, err := c.CheckAll(ctx, "key-3", windows)
			require.Error(t, err)
			assert.Equal(t, 1, results[0].Count)
			assert.Equal(t, 99, results[0].Remaining)
			assert.Empty(t, results[0].Member)
		}

		minute, err := mr.ZMembers("rl:minute:key-3:60")
		require.NoError(t, err)
		assert.Len(t, minute, 1)
		hour, err := mr.ZMembers("rl:hour:key-3:3600")
		require.NoError(t, err)
		assert.Len(t, hour, 1)
	})

	t.Run("fails open when backend is down", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		defer client.Close()
		mr.Close()

		c := NewCoordinator(NewSlidingWindowLimiter(client, "rl", WithTimeout(100*time.Millisecond)), "api_key", nil)

		results, err := c.CheckAll(context.Background(), "key-4", KeyWindows(1, 1, 1))
		require.NoError(t, err)
		for _, r := range results {
			assert.True(t, r.Allowed)
			assert.Error(t, r.Err)
		}
	})
}

func TestCoordinator_StatusAndReset(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	c := NewCoordinator(NewSlidingWindowLimiter(client, "rl"), "api_key", nil)
	ctx := context.Background()
	windows := KeyWindows(2, 10, 100)

	for i := 0; i < 2; i++ {
		_, err := c.CheckAll(ctx, "key-5", windows)
		require.NoError(t, err)
	}

	status := c.Status(ctx, "key-5", windows)
	require.Len(t, status, 3)
	assert.False(t, status[0].Allowed)
	assert.Equal(t, 2, status[0].Count)
	assert.Equal(t, 8, status[1].Remaining)
	assert.Equal(t, 98, status[2].Remaining)

	require.NoError(t, c.Reset(ctx, "key-5", windows))
	assert.False(t, mr.Exists("rl:minute:key-5:60"))
	assert.False(t, mr.Exists("rl:hour:key-5:3600"))
	assert.False(t, mr.Exists("rl:day:key-5:86400"))

	_, err := c.CheckAll(ctx, "key-5", windows)
	assert.NoError(t, err)
}

func TestIPLimiter(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	c := NewCoordinator(NewSlidingWindowLimiter(client, "ip_rate_limit"), "ip", nil)
	limiter := NewIPLimiter(c, IPTiers{Anonymous: 2, Authenticated: 5, Premium: 50})
	ctx := context.Background()

	t.Run("tier windows", func(t *testing.T) {
		assert.Equal(t, 2, limiter.Windows(TierAnonymous)[0].Limit)
		assert.Equal(t, 20, limiter.Windows(TierAnonymous)[1].Limit)
		assert.Equal(t, 5, limiter.Windows(TierAuthenticated)[0].Limit)
		assert.Equal(t, 500, limiter.Windows(TierPremium)[1].Limit)
		assert.Equal(t, 2, limiter.Windows("unknown")[0].Limit)
	})

	t.Run("anonymous callers limited separately from authenticated", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := limiter.Check(ctx, "203.0.113.9", TierAnonymous)
			require.NoError(t, err)
		}
		_, err := limiter.Check(ctx, "203.0.113.9", TierAnonymous)
		assert.ErrorIs(t, err, ErrRateLimitExceeded)

		_, err = limiter.Check(ctx, "203.0.113.9", TierAuthenticated)
		assert.NoError(t, err)

		assert.True(t, mr.Exists("ip_rate_limit:minute:anonymous:203.0.113.9:60"))
		assert.True(t, mr.Exists("ip_rate_limit:minute:authenticated:203.0.113.9:60"))
	})
}
