package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyguard/internal/app"
	"keyguard/internal/auth"
	"keyguard/internal/config"
)

// memoryOpener shares one in-memory service set across commands
func memoryOpener(t *testing.T) (Opener, *app.Services) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:  []byte("cli-secret"),
		SessionTTL: time.Hour,
		Redis: config.RedisConfig{
			Address:      mr.Addr(),
			DialTimeout:  time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:      true,
			CheckTimeout: 100 * time.Millisecond,
		},
		UsageQueue: config.UsageQueueConfig{Backend: "memory", BatchSize: 10, BatchTimeout: 10 * time.Millisecond},
	}

	services, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		services.Close()
		mr.Close()
	})

	open := func(context.Context) (*app.Services, func() error, error) {
		return services, func() error { return nil }, nil
	}
	return open, services
}

func run(t *testing.T, open Opener, args ...string) (string, error) {
	cmd := NewRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type createdKey struct {
	ID     string   `json:"id"`
	Key    string   `json:"key"`
	Scopes []string `json:"scopes"`
	Limits [3]int   `json:"limits"`
}

func TestKeyCommands(t *testing.T) {
	open, services := memoryOpener(t)
	ctx := context.Background()

	_, err := run(t, open, "owner", "create", "--email", "Dev@Example.com", "--password", "owner-pass", "--tier", "basic")
	require.NoError(t, err)

	out, err := run(t, open, "key", "create", "--owner", "dev@example.com", "--name", "ci",
		"--scopes", "read,write", "--per-minute", "3", "--json")
	require.NoError(t, err)

	var created createdKey
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.True(t, strings.HasPrefix(created.Key, "llk_"))
	assert.ElementsMatch(t, []string{"read", "write"}, created.Scopes)
	assert.Equal(t, [3]int{3, 500, 5000}, created.Limits)

	t.Run("list", func(t *testing.T) {
		out, err := run(t, open, "key", "list", "--owner", "dev@example.com")
		require.NoError(t, err)
		assert.Contains(t, out, created.ID)
		assert.Contains(t, out, "3/500/5000")

		out, err = run(t, open, "key", "ls")
		require.NoError(t, err)
		assert.Contains(t, out, "1 of 1 keys")
	})

	t.Run("status after use", func(t *testing.T) {
		_, err := services.Manager.Validate(ctx, created.Key, auth.ValidateOptions{})
		require.NoError(t, err)

		out, err := run(t, open, "key", "status", created.ID)
		require.NoError(t, err)
		assert.Contains(t, out, "minute")
		assert.Regexp(t, `minute\s+3\s+1\s+2`, out)
	})

	t.Run("reset limits", func(t *testing.T) {
		out, err := run(t, open, "key", "reset-limits", created.ID)
		require.NoError(t, err)
		assert.Contains(t, out, "reset")

		out, err = run(t, open, "key", "status", created.ID)
		require.NoError(t, err)
		assert.Regexp(t, `minute\s+3\s+0\s+3`, out)
	})

	t.Run("rotate", func(t *testing.T) {
		out, err := run(t, open, "key", "rotate", created.ID)
		require.NoError(t, err)
		assert.Contains(t, out, "Save this key now")

		_, err = services.Manager.Validate(ctx, created.Key, auth.ValidateOptions{})
		assert.ErrorIs(t, err, auth.ErrKeyNotFound)
	})

	t.Run("revoke then delete", func(t *testing.T) {
		_, err := run(t, open, "key", "revoke", created.ID)
		require.NoError(t, err)

		out, err := run(t, open, "key", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "No API keys found")

		_, err = run(t, open, "key", "delete", created.ID)
		require.NoError(t, err)

		_, err = run(t, open, "key", "status", created.ID)
		assert.ErrorIs(t, err, auth.ErrKeyNotFound)
	})
}

func TestCommandErrors(t *testing.T) {
	open, _ := memoryOpener(t)

	_, err := run(t, open, "key", "create", "--name", "orphan")
	assert.Error(t, err, "--owner is required")

	_, err = run(t, open, "key", "create", "--owner", "ghost@example.com", "--name", "orphan")
	assert.ErrorContains(t, err, "look up owner")

	_, err = run(t, open, "key", "rotate", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid key id")

	_, err = run(t, open, "owner", "create", "--email", "x@example.com", "--password", "pw", "--tier", "gold")
	assert.ErrorContains(t, err, "unknown tier")
}
