package jobs

import (
	"context"
	"time"
)

// JobType names the kind of work a job carries.
type JobType string

// JobTypeGmailNotification is the only job kind: one Gmail push to ingest.
const JobTypeGmailNotification JobType = "gmail_notification"

// JobStatus is the lifecycle state recorded in a JobStore.
type JobStatus string

// pending -> running -> completed, or running -> retrying -> pending until
// the retry budget runs out, then failed.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// GmailNotificationJob is a decoded push for one mailbox. Jobs sharing a
// GmailAddress are handled one at a time, in publish order.
type GmailNotificationJob struct {
	JobID           string     `json:"job_id"`
	GmailAddress    string     `json:"gmail_address"`
	HistoryID       uint64     `json:"history_id"`
	PubSubMessageID string     `json:"pubsub_message_id,omitempty"`
	Status          JobStatus  `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`

	// Result holds whatever the handler reports for a finished run.
	Result any `json:"result,omitempty"`
}

// Job is what a JobHandler receives.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *GmailNotificationJob) GetID() string        { return j.JobID }
func (j *GmailNotificationJob) GetType() JobType     { return JobTypeGmailNotification }
func (j *GmailNotificationJob) GetStatus() JobStatus { return j.Status }

// Publisher hands notifications to a mailbox lane. Implementations must not
// block the caller waiting for lane capacity.
type Publisher interface {
	PublishGmailNotification(ctx context.Context, job *GmailNotificationJob) error
	Close() error
}

// Consumer runs a JobHandler over published jobs until stopped. Stop waits
// for in-flight jobs.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	Stop(ctx context.Context) error
}

// JobHandler processes one job. A non-nil error schedules a retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps job history for diagnostics.
type JobStore interface {
	SaveJob(ctx context.Context, job *GmailNotificationJob) error
	// GetJob returns ErrJobNotFound for unknown ids.
	GetJob(ctx context.Context, jobID string) (*GmailNotificationJob, error)
	// ListJobs returns matches newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*GmailNotificationJob, error)
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	GmailAddress string
	Status       JobStatus
	Limit        int
	Offset       int
}
