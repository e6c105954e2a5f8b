package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai_chat/internal/models"
)

func testRecord(model string) *models.UsageLog {
	return &models.UsageLog{
		Provider:    "gemini",
		Model:       model,
		TotalTokens: 42,
		Success:     true,
	}
}

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	config := DefaultConfig("test")
	q := NewMemoryQueue(config)
	defer q.Close()

	ctx := context.Background()

	record := testRecord("gemini-2.0-flash")
	if err := q.Enqueue(ctx, record); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	records, err := q.Dequeue(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	if records[0].Model != record.Model {
		t.Errorf("Expected model %s, got %s", record.Model, records[0].Model)
	}
}

func TestMemoryQueue_MultipleBatch(t *testing.T) {
	config := DefaultConfig("test")
	config.BatchSize = 5
	q := NewMemoryQueue(config)
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
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

	records, err = q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if len(records) != 5 {
		t.Errorf("Expected 5 records, got %d", len(records))
	}
}

func TestMemoryQueue_DequeueWithTimeout(t *testing.T) {
	config := DefaultConfig("test")
	q := NewMemoryQueue(config)
	defer q.Close()

	ctx := context.Background()

	start := time.Now()
	records, err := q.DequeueWithTimeout(ctx, 1, 100*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}

	if len(records) != 0 {
		t.Errorf("Expected 0 records, got %d", len(records))
	}

	if elapsed < 100*time.Millisecond {
		t.Errorf("Expected timeout, but returned early: %v", elapsed)
	}

	if err := q.Enqueue(ctx, testRecord("gpt-4o-mini")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	records, err = q.DequeueWithTimeout(ctx, 1, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}

	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestMemoryQueue_Length(t *testing.T) {
	config := DefaultConfig("test")
	q := NewMemoryQueue(config)
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, testRecord("gpt-4o-mini")); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}

	if length != 3 {
		t.Errorf("Expected length 3, got %d", length)
	}
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))

	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := q.Enqueue(context.Background(), testRecord("gpt-4o-mini")); err != ErrQueueClosed {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}

	// Closing twice is fine.
	if err := q.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestMemoryDeadLetterQueue(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue()
	defer dlq.Close()

	ctx := context.Background()

	record := testRecord("gemini-2.0-flash")
	if err := dlq.Add(ctx, record, errors.New("insert failed")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	items, err := dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	if items[0].Error != "insert failed" {
		t.Errorf("Expected error text to survive, got %s", items[0].Error)
	}

	if err := dlq.Remove(ctx, items[0].ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if err := dlq.Remove(ctx, items[0].ID); err != ErrItemNotFound {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}
}
