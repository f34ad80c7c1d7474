package queue

import "errors"

// ErrQueueClosed is returned by every operation on a closed queue
var ErrQueueClosed = errors.New("queue is closed")

// ErrDeadLetterNotFound means no dead-lettered item has the requested id
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// ErrRetriesExhausted wraps the last failure of an item that is moved to
// the dead-letter queue
var ErrRetriesExhausted = errors.New("usage event retries exhausted")
