package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/finko-backend/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// Data is lost on restart. Job history is diagnostic only: correctness of
// ingestion rests on the processed-email markers, not on this store.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobs.GmailNotificationJob
	maxJobs int
}

// NewStore creates a new in-memory job store that keeps at most maxJobs
// entries, evicting the oldest finished ones first. maxJobs <= 0 means no cap.
func NewStore(maxJobs int) *Store {
	return &Store{
		jobs:    make(map[string]*jobs.GmailNotificationJob),
		maxJobs: maxJobs,
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.GmailNotificationJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	s.evict()

	return nil
}

// evict drops the oldest finished jobs once the cap is exceeded.
func (s *Store) evict() {
	if s.maxJobs <= 0 || len(s.jobs) <= s.maxJobs {
		return
	}
	finished := make([]*jobs.GmailNotificationJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Status == jobs.JobStatusCompleted || j.Status == jobs.JobStatusFailed {
			finished = append(finished, j)
		}
	}
	sort.Slice(finished, func(a, b int) bool {
		return finished[a].CreatedAt.Before(finished[b].CreatedAt)
	})
	for _, j := range finished {
		if len(s.jobs) <= s.maxJobs {
			return
		}
		delete(s.jobs, j.JobID)
	}
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.GmailNotificationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface. Results are newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.GmailNotificationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.GmailNotificationJob{}
	for _, job := range s.jobs {
		if filter.GmailAddress != "" && !strings.EqualFold(job.GmailAddress, filter.GmailAddress) {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}

		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].CreatedAt.After(result[b].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.GmailNotificationJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
