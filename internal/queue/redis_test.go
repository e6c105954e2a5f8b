package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *Config) {
	t.Helper()

	mr := miniredis.RunT(t)

	config := DefaultConfig("usage-test")
	config.UseRedis = true
	config.RedisAddr = mr.Addr()

	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	t.Cleanup(func() { q.Close() })

	return q, config
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	ctx := context.Background()

	record := testRecord("gemini-2.0-flash")
	record.PromptTokens = 10
	if err := q.Enqueue(ctx, record); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	records, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	if records[0].Model != record.Model || records[0].PromptTokens != 10 {
		t.Errorf("Record did not survive the round trip: %+v", records[0])
	}
}

func TestRedisQueue_BatchDrain(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := q.Enqueue(ctx, testRecord("gpt-4o-mini")); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	records, err := q.Dequeue(ctx, 5)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("Expected 5 records, got %d", len(records))
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 2 {
		t.Errorf("Expected 2 remaining, got %d", length)
	}
}

func TestRedisQueue_DequeueWithTimeoutEmpty(t *testing.T) {
	q, _ := newTestRedisQueue(t)

	records, err := q.DequeueWithTimeout(context.Background(), 5, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected 0 records, got %d", len(records))
	}
}

func TestRedisDeadLetterQueue(t *testing.T) {
	_, config := newTestRedisQueue(t)

	dlq, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}
	defer dlq.Close()

	ctx := context.Background()

	if err := dlq.Add(ctx, testRecord("gemini-2.0-flash"), errors.New("db unavailable")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	items, err := dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Record == nil || items[0].Record.Model != "gemini-2.0-flash" {
		t.Errorf("Record did not survive the round trip: %+v", items[0])
	}

	if err := dlq.Remove(ctx, items[0].ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	items, err = dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected empty dead letter queue, got %d items", len(items))
	}
}
