package jobs

import "errors"

var (
	// ErrJobNotFound is returned by JobStore.GetJob for unknown ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueClosed is returned when publishing to a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrQueueFull is returned when a mailbox lane has no room left.
	ErrQueueFull = errors.New("queue is full")
)
