package inmemory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/finko-backend/internal/jobs"
	"github.com/google/uuid"
)

// Queue is an in-memory implementation of job publisher and consumer.
// Every mailbox gets its own lane: a buffered channel drained by exactly one
// worker goroutine, so notifications for the same mailbox never run
// concurrently while different mailboxes proceed in parallel.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	bufferSize   int
	retryBackoff time.Duration

	mu      sync.Mutex
	lanes   map[string]chan *jobs.GmailNotificationJob
	handler jobs.JobHandler
	ctx     context.Context
	closed  bool

	closeChan chan struct{}
	wg        sync.WaitGroup
	store     jobs.JobStore
}

// Option configures a Queue.
type Option func(*Queue)

// WithRetryBackoff sets the base delay between retries. The n-th retry
// waits n times this value.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) { q.retryBackoff = d }
}

// NewQueue creates a new in-memory job queue.
// bufferSize is the per-mailbox lane capacity; publishing to a full lane
// fails with jobs.ErrQueueFull.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	q := &Queue{
		bufferSize:   bufferSize,
		retryBackoff: time.Second,
		lanes:        make(map[string]chan *jobs.GmailNotificationJob),
		closeChan:    make(chan struct{}),
		store:        store,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func laneKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// PublishGmailNotification implements the Publisher interface. It never
// waits for room on the lane.
func (q *Queue) PublishGmailNotification(ctx context.Context, job *jobs.GmailNotificationJob) error {
	if job.GmailAddress == "" {
		return fmt.Errorf("gmail address is required")
	}
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}

	lane, err := q.lane(job.GmailAddress)
	if err != nil {
		return err
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case lane <- job:
		return nil
	default:
		if q.store != nil {
			dropped := *job
			dropped.Status = jobs.JobStatusFailed
			dropped.Error = jobs.ErrQueueFull.Error()
			_ = q.store.SaveJob(ctx, &dropped)
		}
		return jobs.ErrQueueFull
	}
}

// lane returns the channel for addr, creating it and its worker on first use.
func (q *Queue) lane(addr string) (chan *jobs.GmailNotificationJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, jobs.ErrQueueClosed
	}
	key := laneKey(addr)
	ch, ok := q.lanes[key]
	if !ok {
		ch = make(chan *jobs.GmailNotificationJob, q.bufferSize)
		q.lanes[key] = ch
		if q.handler != nil {
			q.startWorker(ch)
		}
	}
	return ch, nil
}

// startWorker must be called with q.mu held.
func (q *Queue) startWorker(ch chan *jobs.GmailNotificationJob) {
	q.wg.Add(1)
	go q.worker(q.ctx, ch, q.handler)
}

// Start implements the Consumer interface. Lanes created before Start get
// their workers now; later lanes get one when they are created.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}
	if q.handler != nil {
		return fmt.Errorf("queue already started")
	}
	q.ctx = ctx
	q.handler = handler
	for _, ch := range q.lanes {
		q.startWorker(ch)
	}
	return nil
}

// worker drains one mailbox lane.
func (q *Queue) worker(ctx context.Context, ch chan *jobs.GmailNotificationJob, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-ch:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.GmailNotificationJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := runHandler(ctx, job, handler)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Error = err.Error()

		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying

			// Linear backoff. The retry rejoins the same mailbox lane.
			backoff := time.Duration(job.RetryCount) * q.retryBackoff
			retry := *job
			time.AfterFunc(backoff, func() {
				retry.Status = jobs.JobStatusPending
				retry.StartedAt = nil
				retry.CompletedAt = nil
				_ = q.PublishGmailNotification(ctx, &retry)
			})
		} else {
			job.Status = jobs.JobStatusFailed
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// runHandler turns a handler panic into an error so one bad job cannot take
// down its lane worker.
func runHandler(ctx context.Context, job *jobs.GmailNotificationJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

// Stop implements the Consumer interface.
// It stops the queue and waits for in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Lanes reports how many mailbox lanes exist.
func (q *Queue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
