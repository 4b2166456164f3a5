package leads

import (
	"context"
	"time"
)

// JobStore owns job records and is the only writer of job state.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	Transition(ctx context.Context, jobID string, status JobStatus) error
	RecordProgress(ctx context.Context, jobID string, processedCount int) error
	Touch(ctx context.Context, jobID string) error
	RecordExecution(ctx context.Context, jobID string, executionID string) error
	RecordSummary(ctx context.Context, jobID string, summary string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
}

// PropertyStore holds per-job property lists plus lead outreach statuses.
type PropertyStore interface {
	InitJob(ctx context.Context, jobID string) error
	Append(ctx context.Context, jobID string, prop Property) (string, error)
	List(ctx context.Context, jobID string) ([]Property, error)
	Tail(ctx context.Context, jobID string, n int) ([]Property, error)
	Count(ctx context.Context, jobID string) (int, error)
	AllLeads(ctx context.Context) ([]Lead, error)
	ListNewLeads(ctx context.Context, page, pageSize int) ([]Lead, int, error)
	GetLead(ctx context.Context, leadID string) (Lead, error)
	SetStatus(ctx context.Context, leadID string, status LeadStatus) error
	GetStatus(ctx context.Context, leadID string) (LeadStatus, error)
}

// Runner triggers the external workflow runner for a job.
type Runner interface {
	Trigger(ctx context.Context, jobID string, params JobParameters) (TriggerResult, error)
}

// TriggerQueue provides enqueue/dequeue semantics for runner trigger tasks.
type TriggerQueue interface {
	Enqueue(ctx context.Context, item TriggerItem) error
	Dequeue(ctx context.Context) (TriggerItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
