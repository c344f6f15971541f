package inmemory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/finko-backend/internal/jobs"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestQueue_SameMailboxRunsInOrderOneAtATime(t *testing.T) {
	q := NewQueue(50, nil)
	defer q.Close()

	var (
		mu       sync.Mutex
		order    []uint64
		inFlight int
		maxSeen  int
	)
	handler := func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.GmailNotificationJob)
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight--
		order = append(order, j.HistoryID)
		mu.Unlock()
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 20
	for i := 1; i <= n; i++ {
		job := &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com", HistoryID: uint64(i)}
		if err := q.PublishGmailNotification(context.Background(), job); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == n
	})

	mu.Lock()
	defer mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("expected at most one job in flight per mailbox, saw %d", maxSeen)
	}
	for i, h := range order {
		if h != uint64(i+1) {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestQueue_DifferentMailboxesRunConcurrently(t *testing.T) {
	q := NewQueue(5, nil)
	defer q.Close()

	bStarted := make(chan struct{})
	aDone := make(chan struct{})
	handler := func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.GmailNotificationJob)
		switch j.GmailAddress {
		case "a@gmail.com":
			select {
			case <-bStarted:
			case <-time.After(2 * time.Second):
				return errors.New("mailbox b never started while a was running")
			}
			close(aDone)
		case "b@gmail.com":
			close(bStarted)
		}
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx := context.Background()
	if err := q.PublishGmailNotification(ctx, &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com"}); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	if err := q.PublishGmailNotification(ctx, &jobs.GmailNotificationJob{GmailAddress: "b@gmail.com"}); err != nil {
		t.Fatalf("publish b: %v", err)
	}

	select {
	case <-aDone:
	case <-time.After(3 * time.Second):
		t.Fatal("mailbox a did not finish")
	}
	if q.Lanes() != 2 {
		t.Errorf("expected 2 lanes, got %d", q.Lanes())
	}
}

func TestQueue_LaneKeyIgnoresCase(t *testing.T) {
	q := NewQueue(5, nil)
	defer q.Close()

	ctx := context.Background()
	_ = q.PublishGmailNotification(ctx, &jobs.GmailNotificationJob{GmailAddress: "User@Gmail.com"})
	_ = q.PublishGmailNotification(ctx, &jobs.GmailNotificationJob{GmailAddress: "user@gmail.com "})
	if q.Lanes() != 1 {
		t.Errorf("expected one lane, got %d", q.Lanes())
	}
}

func TestQueue_PublishedBeforeStartIsProcessed(t *testing.T) {
	store := NewStore(0)
	q := NewQueue(5, store)
	defer q.Close()

	job := &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com", HistoryID: 9}
	if err := q.PublishGmailNotification(context.Background(), job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	saved, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if saved.Status != jobs.JobStatusPending || saved.MaxRetries != 3 {
		t.Errorf("unexpected initial job: %+v", saved)
	}

	if err := q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		j, _ := store.GetJob(context.Background(), job.JobID)
		return j != nil && j.Status == jobs.JobStatusCompleted
	})
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	store := NewStore(0)
	q := NewQueue(5, store, WithRetryBackoff(10*time.Millisecond))
	defer q.Close()

	var (
		mu    sync.Mutex
		calls int
	)
	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		job.(*jobs.GmailNotificationJob).Result = "ok"
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com"}
	if err := q.PublishGmailNotification(context.Background(), job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		j, _ := store.GetJob(context.Background(), job.JobID)
		return j != nil && j.Status == jobs.JobStatusCompleted
	})

	final, _ := store.GetJob(context.Background(), job.JobID)
	if final.RetryCount != 1 || final.Error != "" || final.Result != "ok" {
		t.Errorf("unexpected final job: %+v", final)
	}
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	store := NewStore(0)
	q := NewQueue(5, store, WithRetryBackoff(time.Millisecond))
	defer q.Close()

	if err := q.Start(context.Background(), func(context.Context, jobs.Job) error {
		return errors.New("permanent")
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com", MaxRetries: 2}
	if err := q.PublishGmailNotification(context.Background(), job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		j, _ := store.GetJob(context.Background(), job.JobID)
		return j != nil && j.Status == jobs.JobStatusFailed
	})
	final, _ := store.GetJob(context.Background(), job.JobID)
	if final.RetryCount != 2 || final.Error != "permanent" {
		t.Errorf("unexpected final job: %+v", final)
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(5, nil)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	err := q.PublishGmailNotification(context.Background(), &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com"})
	if !errors.Is(err, jobs.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }); !errors.Is(err, jobs.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed from Start, got %v", err)
	}
}

func TestQueue_RequiresAddress(t *testing.T) {
	q := NewQueue(5, nil)
	defer q.Close()

	if err := q.PublishGmailNotification(context.Background(), &jobs.GmailNotificationJob{}); err == nil {
		t.Fatal("expected error for missing address")
	}
}

func TestQueue_StartTwice(t *testing.T) {
	q := NewQueue(5, nil)
	defer q.Close()

	h := func(context.Context, jobs.Job) error { return nil }
	if err := q.Start(context.Background(), h); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := q.Start(context.Background(), h); err == nil {
		t.Fatal("expected error on second Start")
	}
}

func TestQueue_PanickingHandlerFailsJobAndLaneContinues(t *testing.T) {
	store := NewStore(0)
	q := NewQueue(5, store, WithRetryBackoff(time.Millisecond))
	defer q.Close()

	if err := q.Start(context.Background(), func(_ context.Context, j jobs.Job) error {
		if j.(*jobs.GmailNotificationJob).HistoryID == 1 {
			panic("nil result")
		}
		return nil
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bad := &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com", HistoryID: 1, MaxRetries: 1}
	if err := q.PublishGmailNotification(context.Background(), bad); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		j, _ := store.GetJob(context.Background(), bad.JobID)
		return j != nil && j.Status == jobs.JobStatusFailed
	})
	final, _ := store.GetJob(context.Background(), bad.JobID)
	if !strings.Contains(final.Error, "panicked") {
		t.Errorf("expected panic recorded as job error, got %q", final.Error)
	}

	good := &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com", HistoryID: 2}
	if err := q.PublishGmailNotification(context.Background(), good); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		j, _ := store.GetJob(context.Background(), good.JobID)
		return j != nil && j.Status == jobs.JobStatusCompleted
	})
}

func TestQueue_FullLaneDoesNotBlock(t *testing.T) {
	store := NewStore(0)
	q := NewQueue(1, store)
	defer q.Close()

	first := &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com", HistoryID: 1}
	if err := q.PublishGmailNotification(context.Background(), first); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	second := &jobs.GmailNotificationJob{GmailAddress: "a@gmail.com", HistoryID: 2}
	start := time.Now()
	err := q.PublishGmailNotification(context.Background(), second)
	if !errors.Is(err, jobs.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("publish to full lane took %s", elapsed)
	}

	got, err := store.GetJob(context.Background(), second.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != jobs.JobStatusFailed {
		t.Errorf("expected dropped job recorded as failed, got %s", got.Status)
	}

	// Other mailboxes have their own lanes.
	other := &jobs.GmailNotificationJob{GmailAddress: "b@gmail.com", HistoryID: 1}
	if err := q.PublishGmailNotification(context.Background(), other); err != nil {
		t.Errorf("publish to another mailbox: %v", err)
	}
}
