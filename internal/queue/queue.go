// Package queue carries usage events from the request path to the usage
// worker. Two backends share one interface:
//
//   - MemoryQueue: buffered channel, lost on restart, no dependencies.
//     Used for standalone deployments and tests.
//   - RedisQueue: Redis list on the shared client, survives restarts and
//     can be drained by workers in other processes.
//
// Items that exhaust their retries land in a DeadLetterQueue where an
// operator can inspect and requeue them.
package queue

import (
	"context"
	"time"
)

// Queue defines the interface for message queuing
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item any) error

	// Dequeue retrieves up to maxItems, blocking until at least one is
	// available or ctx is cancelled
	Dequeue(ctx context.Context, maxItems int) ([]any, error)

	// DequeueWithTimeout returns an empty slice if nothing arrives before timeout
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]any, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue defines the interface for handling failed items
type DeadLetterQueue interface {
	// Add adds a failed item with the error that sank it
	Add(ctx context.Context, item any, err error) error

	// List returns up to maxItems dead items, oldest first. maxItems <= 0 lists all.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove removes an item from the dead letter queue
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem struct {
	ID        string    `json:"id"`
	Item      any       `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 1 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
		QueueName:    queueName,
	}
}
