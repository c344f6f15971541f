package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finko-backend/internal/config"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/dvloznov/finko-backend/internal/ingest"
	"github.com/dvloznov/finko-backend/internal/jobs"
	"github.com/dvloznov/finko-backend/internal/jobs/inmemory"
	"github.com/rs/zerolog"
)

// noConnections knows no mailbox.
type noConnections struct {
	updates int
}

func (c *noConnections) FindConnectionByAddress(ctx context.Context, gmailAddress string) (*domain.BankConnection, error) {
	return nil, nil
}

func (c *noConnections) UpdateHistoryID(ctx context.Context, gmailAddress string, historyID uint64) error {
	c.updates++
	return nil
}

type otherJob struct{}

func (otherJob) GetID() string             { return "x" }
func (otherJob) GetType() jobs.JobType     { return "other" }
func (otherJob) GetStatus() jobs.JobStatus { return jobs.JobStatusPending }

func TestGmailJobHandler_RejectsOtherJobs(t *testing.T) {
	a := &App{Log: zerolog.Nop()}
	err := a.GmailJobHandler()(context.Background(), otherJob{})
	if err == nil || !strings.Contains(err.Error(), "unexpected job type") {
		t.Errorf("expected unexpected job type error, got %v", err)
	}
}

func TestGmailJobHandler_UnknownMailbox(t *testing.T) {
	conns := &noConnections{}
	a := &App{
		Log:    zerolog.Nop(),
		Ingest: ingest.NewService(ingest.Deps{Connections: conns}, zerolog.Nop()),
	}

	job := &jobs.GmailNotificationJob{GmailAddress: "nobody@gmail.com", HistoryID: 1}
	if err := a.GmailJobHandler()(context.Background(), job); err != nil {
		t.Fatalf("expected unknown mailbox to be ignored, got %v", err)
	}
	if job.Result != nil {
		t.Errorf("expected no result, got %+v", job.Result)
	}
	if conns.updates != 0 {
		t.Errorf("expected cursor untouched, got %d updates", conns.updates)
	}
}

func TestGmailJobHandler_UnknownMailboxThroughQueue(t *testing.T) {
	a := &App{
		Log:    zerolog.Nop(),
		Ingest: ingest.NewService(ingest.Deps{Connections: &noConnections{}}, zerolog.Nop()),
	}
	store := inmemory.NewStore(0)
	q := inmemory.NewQueue(5, store)
	defer q.Close()
	if err := q.Start(context.Background(), a.GmailJobHandler()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.GmailNotificationJob{GmailAddress: "nobody@gmail.com", HistoryID: 1}
	if err := q.PublishGmailNotification(context.Background(), job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := store.GetJob(context.Background(), job.JobID)
		if got != nil && got.Status == jobs.JobStatusCompleted {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete: %+v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(context.Background(), &config.Config{ExtractionProvider: "llama"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewExtractor_OpenAI(t *testing.T) {
	g, err := NewExtractor(context.Background(), &config.Config{
		ExtractionProvider: config.ProviderOpenAI,
		OpenAIAPIKey:       "sk-test",
		OpenAIModel:        "gpt-4o-mini",
	}, zerolog.Nop())
	if err != nil || g == nil {
		t.Fatalf("expected a gateway, got %v", err)
	}
}

func TestClose_ReverseOrder(t *testing.T) {
	var order []int
	a := &App{Log: zerolog.Nop()}
	for i := 1; i <= 3; i++ {
		i := i
		a.closers = append(a.closers, func() error { order = append(order, i); return nil })
	}
	a.Close()
	a.Close()

	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("expected closers to run once in reverse order, got %v", order)
	}
}
