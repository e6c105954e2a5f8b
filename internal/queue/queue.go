// Package queue buffers usage records between the request path and the
// batch writer with two interchangeable backends:
//
//  1. Memory queue (channel-based): no persistence, no external
//     dependencies. Fits standalone deployments where losing in-flight
//     records on restart is acceptable.
//
//  2. Redis queue (list-based): survives restarts and supports multiple
//     writer processes draining the same stream.
//
// Records the writer cannot persist after retrying land in a dead letter
// queue for operator inspection.
package queue

import (
	"context"
	"time"

	"ai_chat/internal/models"
)

// Queue moves usage records from producers to the batch writer.
type Queue interface {
	// Enqueue adds a record to the queue.
	Enqueue(ctx context.Context, record *models.UsageLog) error

	// Dequeue retrieves up to maxItems records, blocking until at least
	// one is available or the context is cancelled.
	Dequeue(ctx context.Context, maxItems int) ([]*models.UsageLog, error)

	// DequeueWithTimeout retrieves up to maxItems records, returning an
	// empty slice if none arrive before the timeout.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]*models.UsageLog, error)

	// Length returns the current queue length.
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue.
	Close() error
}

// DeadLetterQueue holds records the writer gave up on.
type DeadLetterQueue interface {
	Add(ctx context.Context, record *models.UsageLog, err error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem is one failed record with its failure reason.
type DeadLetterItem struct {
	ID        string           `json:"id"`
	Record    *models.UsageLog `json:"record"`
	Error     string           `json:"error"`
	Timestamp time.Time        `json:"timestamp"`
	Retries   int              `json:"retries"`
}

// Config holds queue configuration.
type Config struct {
	// BatchSize is the maximum number of records per drained batch.
	BatchSize int

	// BatchTimeout is how long the writer waits before flushing a
	// partial batch.
	BatchTimeout time.Duration

	// MaxRetries is how many times a failed batch is retried before its
	// records go to the dead letter queue.
	MaxRetries int

	// RetryBackoff is the initial backoff between retries.
	RetryBackoff time.Duration

	// UseRedis selects the Redis backend over the in-memory one.
	UseRedis bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// QueueName is the name/key for the queue.
	QueueName string
}

// DefaultConfig returns default queue configuration.
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		UseRedis:     false,
		QueueName:    queueName,
	}
}

// New builds the queue backend the config selects.
func New(config *Config) (Queue, error) {
	if config != nil && config.UseRedis {
		return NewRedisQueue(config)
	}
	return NewMemoryQueue(config), nil
}
