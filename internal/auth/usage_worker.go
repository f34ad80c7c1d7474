package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"keyguard/internal/metrics"
	"keyguard/internal/models"
	"keyguard/internal/queue"
	"keyguard/internal/utils"
)

// Usage event outcomes reported to metrics
const (
	usageEnqueued = "enqueued"
	usageDropped  = "dropped"
	usageRecorded = "recorded"
	usageSkipped  = "skipped"
	usageFailed   = "dead_lettered"
)

const (
	enqueueTimeout = 100 * time.Millisecond
	drainTimeout   = 5 * time.Second
)

// UsageRecorder persists one usage event
type UsageRecorder interface {
	RecordUsage(ctx context.Context, ev models.UsageEvent) error
}

// UsageWorker drains usage events from a queue into a UsageRecorder.
// Failed events are retried with exponential backoff and then dead-lettered.
type UsageWorker struct {
	queue    queue.Queue
	dlq      queue.DeadLetterQueue
	recorder UsageRecorder
	config   *queue.Config
	metrics  metrics.Metrics
	logger   *utils.Logger

	stopOnce    sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewUsageWorker creates a new usage worker
func NewUsageWorker(q queue.Queue, dlq queue.DeadLetterQueue, recorder UsageRecorder, config *queue.Config, m metrics.Metrics) *UsageWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}
	if m == nil {
		m = metrics.NewNoopMetrics()
	}

	return &UsageWorker{
		queue:       q,
		dlq:         dlq,
		recorder:    recorder,
		config:      config,
		metrics:     m,
		logger:      utils.NewLogger("usage-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *UsageWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop processes what is already queued, then stops the worker
func (w *UsageWorker) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.stoppedChan
	return nil
}

// Enqueue hands an event to the queue without holding up the caller. A full
// or unavailable queue drops the event.
func (w *UsageWorker) Enqueue(ctx context.Context, ev models.UsageEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := w.queue.Enqueue(ctx, ev); err != nil {
		w.metrics.RecordUsageEvent(usageDropped)
		w.logger.Warn("Dropping usage event", "key_id", ev.APIKeyID, "error", err)
		return
	}
	w.metrics.RecordUsageEvent(usageEnqueued)
}

// run is the main worker loop
func (w *UsageWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Usage worker stopping")
			w.drain()
			return
		case <-ctx.Done():
			w.logger.Info("Usage worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// drain flushes the events still queued at shutdown
func (w *UsageWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for ctx.Err() == nil {
		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, 10*time.Millisecond)
		if err != nil || len(items) == 0 {
			return
		}
		w.processItems(ctx, items)
	}
}

// processBatch processes a batch of usage events
func (w *UsageWorker) processBatch(ctx context.Context) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
			w.wait(ctx, w.config.BatchTimeout)
			return
		}
		w.logger.Error("Failed to dequeue usage events", "error", err)
		w.wait(ctx, time.Second)
		return
	}

	if len(items) > 0 {
		w.logger.Debug("Processing usage batch", "count", len(items))
		w.processItems(ctx, items)
	}
}

func (w *UsageWorker) processItems(ctx context.Context, items []any) {
	for _, item := range items {
		ev, err := unmarshalEvent(item)
		if err != nil {
			w.logger.Error("Failed to unmarshal usage event", "error", err)
			continue
		}
		if err := w.processItem(ctx, ev, item); err != nil {
			w.logger.Error("Failed to process usage event", "key_id", ev.APIKeyID, "error", err)
		}
	}
}

// processItem records a single event with retries
func (w *UsageWorker) processItem(ctx context.Context, ev models.UsageEvent, raw any) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage event", "attempt", attempt, "backoff", backoff)
			if !w.wait(ctx, backoff) {
				break
			}
		}

		err := w.recorder.RecordUsage(ctx, ev)
		if err == nil {
			w.metrics.RecordUsageEvent(usageRecorded)
			return nil
		}
		if errors.Is(err, ErrKeyNotFound) {
			// Key deleted after the request was admitted
			w.metrics.RecordUsageEvent(usageSkipped)
			w.logger.Debug("Skipping usage for deleted key", "key_id", ev.APIKeyID)
			return nil
		}

		lastErr = err
		w.logger.Warn("Failed to record usage", "attempt", attempt, "key_id", ev.APIKeyID, "error", err)
	}

	w.metrics.RecordUsageEvent(usageFailed)
	if w.dlq != nil {
		if err := w.dlq.Add(context.WithoutCancel(ctx), raw, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Usage event moved to DLQ", "key_id", ev.APIKeyID, "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %w", queue.ErrRetriesExhausted, lastErr)
}

// wait sleeps for d unless the worker is stopped first. It reports whether
// the full duration elapsed.
func (w *UsageWorker) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// unmarshalEvent converts a queue item into a UsageEvent
func unmarshalEvent(item any) (models.UsageEvent, error) {
	var ev models.UsageEvent
	switch v := item.(type) {
	case models.UsageEvent:
		return v, nil
	case *models.UsageEvent:
		return *v, nil
	case json.RawMessage:
		return ev, json.Unmarshal(v, &ev)
	case []byte:
		return ev, json.Unmarshal(v, &ev)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return ev, fmt.Errorf("failed to marshal item: %w", err)
		}
		return ev, json.Unmarshal(data, &ev)
	}
}

// QueueLength returns the current queue length
func (w *UsageWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems returns items from the dead letter queue
func (w *UsageWorker) DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem puts a dead-lettered event back on the queue
func (w *UsageWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}

	return queue.ErrDeadLetterNotFound
}
