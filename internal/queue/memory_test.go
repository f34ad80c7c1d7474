package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "event-1"))

	items, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "event-1", items[0])
}

func TestMemoryQueue_MultipleBatch(t *testing.T) {
	config := DefaultConfig("test")
	config.BatchSize = 5
	q := NewMemoryQueue(config)
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}

	items, err := q.Dequeue(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []any{0, 1, 2, 3, 4}, items)

	items, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestMemoryQueue_DequeueWithTimeout(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()

	start := time.Now()
	items, err := q.DequeueWithTimeout(ctx, 1, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}

	// A partial batch returns without waiting for the timeout
	start = time.Now()
	items, err = q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestMemoryQueue_Length(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()
	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, length)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}
	length, err = q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, length)
}

func TestMemoryQueue_ContextCancelled(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx, 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMemoryQueue_ConcurrentProducerConsumer(t *testing.T) {
	config := DefaultConfig("concurrent")
	config.BatchSize = 20
	q := NewMemoryQueue(config)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const total = 100
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/4; i++ {
				_ = q.Enqueue(ctx, i)
			}
		}()
	}

	var processed atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		for processed.Load() < total {
			items, err := q.DequeueWithTimeout(ctx, config.BatchSize, 50*time.Millisecond)
			if err != nil {
				return
			}
			processed.Add(int32(len(items)))
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, int32(total), processed.Load())
}

func TestMemoryQueue_ClosedQueue(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	ctx := context.Background()
	assert.ErrorIs(t, q.Enqueue(ctx, "x"), ErrQueueClosed)

	_, err := q.Dequeue(ctx, 1)
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Length(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryDeadLetterQueue(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue()
	ctx := context.Background()

	require.NoError(t, dlq.Add(ctx, "first", errors.New("boom")))
	require.NoError(t, dlq.Add(ctx, "second", errors.New("bang")))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Item)
	assert.Equal(t, "boom", items[0].Error)
	assert.NotEmpty(t, items[0].ID)
	assert.NotEqual(t, items[0].ID, items[1].ID)

	limited, err := dlq.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[0].ID), ErrDeadLetterNotFound)

	items, err = dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].Item)

	require.NoError(t, dlq.Close())
	assert.ErrorIs(t, dlq.Add(ctx, "third", errors.New("x")), ErrQueueClosed)
	_, err = dlq.List(ctx, 0)
	assert.ErrorIs(t, err, ErrQueueClosed)
}
