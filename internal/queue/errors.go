package queue

import "errors"

var (
	// ErrQueueClosed is returned for any operation on a closed queue.
	ErrQueueClosed = errors.New("usage queue is closed")

	// ErrItemNotFound is returned when a dead-letter item does not exist.
	ErrItemNotFound = errors.New("dead-letter item not found")
)
