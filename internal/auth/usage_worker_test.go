package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyguard/internal/models"
	"keyguard/internal/queue"
)

// scriptedRecorder returns queued errors before succeeding
type scriptedRecorder struct {
	mu       sync.Mutex
	errs     []error
	always   error
	calls    int
	recorded []models.UsageEvent
}

func (r *scriptedRecorder) RecordUsage(_ context.Context, ev models.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.always != nil {
		return r.always
	}
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	r.recorded = append(r.recorded, ev)
	return nil
}

func (r *scriptedRecorder) setAlways(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.always = err
}

func (r *scriptedRecorder) stats() (calls, recorded int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, len(r.recorded)
}

// countingMetrics tallies usage outcomes
type countingMetrics struct {
	mu    sync.Mutex
	usage map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{usage: make(map[string]int)}
}

func (m *countingMetrics) RecordRateLimitDecision(string, string, bool) {}
func (m *countingMetrics) RecordRateLimitFailOpen(string) {}
func (m *countingMetrics) RecordValidation(string) {}

func (m *countingMetrics) RecordUsageEvent(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[outcome]++
}

func (m *countingMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[outcome]
}

func testQueueConfig() *queue.Config {
	return &queue.Config{
		BatchSize:    10,
		BatchTimeout: 20 * time.Millisecond,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		QueueName:    "usage-test",
	}
}

func newEvent() models.UsageEvent {
	return models.UsageEvent{APIKeyID: uuid.New(), Timestamp: time.Now(), ClientIP: "192.0.2.1"}
}

func TestUsageWorker_RecordsEvents(t *testing.T) {
	recorder := &scriptedRecorder{}
	m := newCountingMetrics()
	cfg := testQueueConfig()
	w := NewUsageWorker(queue.NewMemoryQueue(cfg), queue.NewMemoryDeadLetterQueue(), recorder, cfg, m)

	ctx := context.Background()
	w.Start(ctx)
	for i := 0; i < 3; i++ {
		w.Enqueue(ctx, newEvent())
	}

	assert.Eventually(t, func() bool {
		_, recorded := recorder.stats()
		return recorded == 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.Equal(t, 3, m.count(usageEnqueued))
	assert.Equal(t, 3, m.count(usageRecorded))
}

func TestUsageWorker_RetriesTransientFailures(t *testing.T) {
	recorder := &scriptedRecorder{errs: []error{errors.New("db down"), errors.New("db down")}}
	cfg := testQueueConfig()
	dlq := queue.NewMemoryDeadLetterQueue()
	w := NewUsageWorker(queue.NewMemoryQueue(cfg), dlq, recorder, cfg, nil)

	err := w.processItem(context.Background(), newEvent(), nil)
	require.NoError(t, err)

	calls, recorded := recorder.stats()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, recorded)

	items, err := dlq.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUsageWorker_DeadLettersAfterRetries(t *testing.T) {
	recorder := &scriptedRecorder{always: errors.New("db down")}
	m := newCountingMetrics()
	cfg := testQueueConfig()
	dlq := queue.NewMemoryDeadLetterQueue()
	w := NewUsageWorker(queue.NewMemoryQueue(cfg), dlq, recorder, cfg, m)
	ctx := context.Background()

	ev := newEvent()
	err := w.processItem(ctx, ev, ev)
	assert.ErrorIs(t, err, queue.ErrRetriesExhausted)

	calls, _ := recorder.stats()
	assert.Equal(t, cfg.MaxRetries+1, calls)
	assert.Equal(t, 1, m.count(usageFailed))

	items, err := w.DeadLetterItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "db down", items[0].Error)

	// Retry from the DLQ once the store recovers
	recorder.setAlways(nil)
	require.NoError(t, w.RetryDeadLetterItem(ctx, items[0].ID))

	length, err := w.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	items, err = w.DeadLetterItems(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, w.RetryDeadLetterItem(ctx, "missing"), queue.ErrDeadLetterNotFound)
}

func TestUsageWorker_SkipsDeletedKeys(t *testing.T) {
	recorder := &scriptedRecorder{always: ErrKeyNotFound}
	m := newCountingMetrics()
	cfg := testQueueConfig()
	dlq := queue.NewMemoryDeadLetterQueue()
	w := NewUsageWorker(queue.NewMemoryQueue(cfg), dlq, recorder, cfg, m)

	require.NoError(t, w.processItem(context.Background(), newEvent(), nil))

	calls, _ := recorder.stats()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, m.count(usageSkipped))

	items, err := dlq.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUsageWorker_DropsWhenQueueFull(t *testing.T) {
	m := newCountingMetrics()
	cfg := testQueueConfig()
	cfg.BatchSize = 1
	w := NewUsageWorker(queue.NewMemoryQueue(cfg), nil, &scriptedRecorder{}, cfg, m)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 11; i++ {
		w.Enqueue(ctx, newEvent())
	}
	assert.Less(t, time.Since(start), time.Second)

	length, err := w.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, length)
	assert.Equal(t, 10, m.count(usageEnqueued))
	assert.Equal(t, 1, m.count(usageDropped))
}

func TestUsageWorker_StopDrainsQueue(t *testing.T) {
	recorder := &scriptedRecorder{}
	cfg := testQueueConfig()
	w := NewUsageWorker(queue.NewMemoryQueue(cfg), nil, recorder, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		w.Enqueue(ctx, newEvent())
	}
	w.Start(ctx)
	require.NoError(t, w.Stop())

	_, recorded := recorder.stats()
	assert.Equal(t, 5, recorded)
}

func TestUnmarshalEvent(t *testing.T) {
	ev := newEvent()

	got, err := unmarshalEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, ev.APIKeyID, got.APIKeyID)

	got, err = unmarshalEvent(map[string]any{"api_key_id": ev.APIKeyID.String(), "client_ip": "192.0.2.1"})
	require.NoError(t, err)
	assert.Equal(t, ev.APIKeyID, got.APIKeyID)
	assert.Equal(t, "192.0.2.1", got.ClientIP)

	_, err = unmarshalEvent([]byte("{not json"))
	assert.Error(t, err)
}
