package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func decodeEvent(t *testing.T, item any) testEvent {
	raw, ok := item.(json.RawMessage)
	require.True(t, ok, "expected json.RawMessage, got %T", item)

	var ev testEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestNewRedisQueue_RequiresArguments(t *testing.T) {
	client, _ := setupTestRedis(t)

	_, err := NewRedisQueue(nil, DefaultConfig("x"))
	assert.Error(t, err)
	_, err = NewRedisQueue(client, nil)
	assert.Error(t, err)
	_, err = NewRedisDeadLetterQueue(nil, DefaultConfig("x"))
	assert.Error(t, err)
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("usage"))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, testEvent{ID: i, Path: "/v1/items"}))
	}
	assert.True(t, mr.Exists("queue:usage"))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, length)

	items, err := q.Dequeue(ctx, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, testEvent{ID: i, Path: "/v1/items"}, decodeEvent(t, item))
	}

	items, err = q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRedisQueue_DequeueWithTimeoutEmpty(t *testing.T) {
	client, _ := setupTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("empty"))
	require.NoError(t, err)

	items, err := q.DequeueWithTimeout(context.Background(), 5, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRedisQueue_SurvivesReconnect(t *testing.T) {
	client, mr := setupTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("persist"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testEvent{ID: 7}))
	require.NoError(t, q.Close())

	// A second process sees the same list
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()
	q2, err := NewRedisQueue(other, DefaultConfig("persist"))
	require.NoError(t, err)

	items, err := q2.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 7, decodeEvent(t, items[0]).ID)
}

func TestRedisDeadLetterQueue(t *testing.T) {
	client, mr := setupTestRedis(t)
	dlq, err := NewRedisDeadLetterQueue(client, DefaultConfig("usage"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, dlq.Add(ctx, testEvent{ID: 1}, errors.New("db down")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, dlq.Add(ctx, testEvent{ID: 2}, errors.New("db still down")))
	assert.True(t, mr.Exists("dlq:usage"))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, decodeEvent(t, items[0].Item).ID)
	assert.Equal(t, "db down", items[0].Error)
	assert.Equal(t, 2, decodeEvent(t, items[1].Item).ID)

	limited, err := dlq.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[0].ID), ErrDeadLetterNotFound)

	items, err = dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
