package logging

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai_chat/internal/models"
	"ai_chat/internal/queue"
	"ai_chat/internal/utils"
)

// BatchInserter persists a batch of usage records.
type BatchInserter interface {
	InsertBatch(ctx context.Context, logs []*models.UsageLog) error
}

// BatchWriter mirrors a batch to external storage.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*models.UsageLog) (string, error)
}

// UsageWorker drains the usage queue and writes batches to the database,
// optionally mirroring each batch to S3. Failed batches are retried with
// backoff; records that still fail go to the dead letter queue.
type UsageWorker struct {
	queue    queue.Queue
	dlq      queue.DeadLetterQueue
	inserter BatchInserter
	mirror   BatchWriter // may be nil
	config   *queue.Config
	logger   *utils.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUsageWorker creates a usage worker. mirror may be nil when S3 export
// is disabled.
func NewUsageWorker(q queue.Queue, dlq queue.DeadLetterQueue, inserter BatchInserter, mirror BatchWriter, config *queue.Config) *UsageWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &UsageWorker{
		queue:    q,
		dlq:      dlq,
		inserter: inserter,
		mirror:   mirror,
		config:   config,
		logger:   utils.NewLogger("usage-worker"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutine.
func (w *UsageWorker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop signals the worker to drain the queue and waits for it to finish.
func (w *UsageWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *UsageWorker) run() {
	defer w.wg.Done()

	for {
		if w.ctx.Err() != nil {
			w.drain(context.Background())
			return
		}

		records, err := w.queue.DequeueWithTimeout(w.ctx, w.config.BatchSize, w.config.BatchTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			if err == queue.ErrQueueClosed {
				return
			}
			w.logger.Error("Failed to dequeue usage records", "error", err)
			time.Sleep(w.config.RetryBackoff)
			continue
		}
		if len(records) == 0 {
			continue
		}

		w.flush(context.Background(), records)
	}
}

// drain empties whatever is left in the queue before shutdown.
func (w *UsageWorker) drain(ctx context.Context) {
	for {
		records, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, 50*time.Millisecond)
		if err != nil || len(records) == 0 {
			return
		}
		w.flush(ctx, records)
	}
}

// flush writes one batch, retrying with backoff before giving records up
// to the dead letter queue.
func (w *UsageWorker) flush(ctx context.Context, records []*models.UsageLog) {
	var err error
	backoff := w.config.RetryBackoff

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		if err = w.inserter.InsertBatch(ctx, records); err == nil {
			break
		}
		w.logger.Warn("Failed to insert usage batch", "attempt", attempt+1, "count", len(records), "error", err)
	}

	if err != nil {
		w.logger.Error("Giving up on usage batch", "count", len(records), "error", err)
		if w.dlq != nil {
			for _, record := range records {
				if dlqErr := w.dlq.Add(ctx, record, err); dlqErr != nil {
					w.logger.Error("Failed to add record to dead letter queue", "error", dlqErr)
				}
			}
		}
		return
	}

	if w.mirror != nil {
		if _, err := w.mirror.WriteBatch(ctx, records); err != nil {
			// Mirroring is best effort; the database write already landed.
			w.logger.Warn("Failed to mirror usage batch", "count", len(records), "error", err)
		}
	}
}
