package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finko-backend/internal/jobs"
)

func TestStore_SaveAndGetReturnCopies(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()

	job := &jobs.GmailNotificationJob{JobID: "j1", GmailAddress: "a@gmail.com", Status: jobs.JobStatusPending}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	job.Status = jobs.JobStatusRunning

	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored job changed through caller pointer: %s", got.Status)
	}
}

func TestStore_Errors(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()

	if err := s.SaveJob(ctx, &jobs.GmailNotificationJob{}); err == nil {
		t.Error("expected error for missing job id")
	}
	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob: expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []*jobs.GmailNotificationJob{
		{JobID: "1", GmailAddress: "a@gmail.com", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "2", GmailAddress: "b@gmail.com", Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Minute)},
		{JobID: "3", GmailAddress: "A@gmail.com", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range seed {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", filter: jobs.JobFilter{}, want: []string{"3", "2", "1"}},
		{name: "by mailbox", filter: jobs.JobFilter{GmailAddress: "a@gmail.com"}, want: []string{"3", "1"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusFailed}, want: []string{"2"}},
		{name: "limit", filter: jobs.JobFilter{Limit: 1}, want: []string{"3"}},
		{name: "offset", filter: jobs.JobFilter{Offset: 2}, want: []string{"1"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 5}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d jobs, got %d", len(tt.want), len(got))
			}
			for i, j := range got {
				if j.JobID != tt.want[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.want[i], j.JobID)
				}
			}
		})
	}
}

func TestStore_EvictsOldestFinished(t *testing.T) {
	s := NewStore(2)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.SaveJob(ctx, &jobs.GmailNotificationJob{JobID: "old", Status: jobs.JobStatusCompleted, CreatedAt: base})
	_ = s.SaveJob(ctx, &jobs.GmailNotificationJob{JobID: "running", Status: jobs.JobStatusRunning, CreatedAt: base.Add(-time.Hour)})
	_ = s.SaveJob(ctx, &jobs.GmailNotificationJob{JobID: "new", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(time.Hour)})

	if _, err := s.GetJob(ctx, "old"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected oldest finished job evicted, got %v", err)
	}
	for _, id := range []string{"running", "new"} {
		if _, err := s.GetJob(ctx, id); err != nil {
			t.Errorf("expected %s kept: %v", id, err)
		}
	}
}
