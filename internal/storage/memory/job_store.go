// Package memory provides the in-process stores that hold all authoritative
// state. State is volatile and rebuilt from zero on boot.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acreleads/realtime-lead-engine/internal/leads"
)

// allowedTransitions encodes the forward-only job status machine. Terminal
// states have no outgoing edges. Direct starting -> terminal edges exist
// because the runner trigger is asynchronous and a stop or completion may
// land before the running confirmation does.
var allowedTransitions = map[leads.JobStatus][]leads.JobStatus{
	leads.JobStatusStarting: {leads.JobStatusRunning, leads.JobStatusStopped, leads.JobStatusCompleted},
	leads.JobStatusRunning:  {leads.JobStatusStopped, leads.JobStatusCompleted},
}

// JobStore is the single authority for job records. All mutation goes through
// one mutex so a transition and a concurrent progress update on the same job
// cannot interleave.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]leads.Job
	order []string
	clock leads.Clock
}

// NewJobStore constructs a JobStore.
func NewJobStore(clock leads.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]leads.Job),
		clock: clock,
	}
}

// CreateJob stores a new job. Creation order is retained for listings.
func (s *JobStore) CreateJob(_ context.Context, job leads.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: %w", job.ID, leads.ErrJobExists)
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return nil
}

// Transition moves a job to a new status if the edge is allowed. Unknown jobs
// and disallowed edges return sentinel errors and leave state untouched.
func (s *JobStore) Transition(_ context.Context, jobID string, status leads.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("transition job %s: %w", jobID, leads.ErrNotFound)
	}
	if !transitionAllowed(job.Status, status) {
		return fmt.Errorf("transition job %s from %s to %s: %w",
			jobID, job.Status, status, leads.ErrInvalidTransition)
	}
	job.Status = status
	if status.Terminal() {
		job.EndTime = pointerTime(s.clock.Now())
	}
	s.jobs[jobID] = job
	return nil
}

// RecordProgress updates the processed-county counter and last-update stamp.
// Progress on a terminal job is rejected.
func (s *JobStore) RecordProgress(_ context.Context, jobID string, processedCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("record progress for job %s: %w", jobID, leads.ErrNotFound)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("record progress for %s job %s: %w",
			job.Status, jobID, leads.ErrInvalidTransition)
	}
	if processedCount > 0 {
		job.Counters.ProcessedCounties = processedCount
	}
	job.LastUpdate = pointerTime(s.clock.Now())
	s.jobs[jobID] = job
	return nil
}

// Touch stamps the job's last-update time without changing anything else.
func (s *JobStore) Touch(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("touch job %s: %w", jobID, leads.ErrNotFound)
	}
	job.LastUpdate = pointerTime(s.clock.Now())
	s.jobs[jobID] = job
	return nil
}

// RecordExecution stores the runner's execution reference for correlation.
func (s *JobStore) RecordExecution(_ context.Context, jobID string, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("record execution for job %s: %w", jobID, leads.ErrNotFound)
	}
	job.ExecutionID = executionID
	s.jobs[jobID] = job
	return nil
}

// RecordSummary stores the free-form completion summary from the runner.
func (s *JobStore) RecordSummary(_ context.Context, jobID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("record summary for job %s: %w", jobID, leads.ErrNotFound)
	}
	job.Summary = summary
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (leads.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return leads.Job{}, fmt.Errorf("get job %s: %w", jobID, leads.ErrNotFound)
	}
	return job, nil
}

// ListJobs returns all jobs in creation order.
func (s *JobStore) ListJobs(_ context.Context) ([]leads.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]leads.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id])
	}
	return out, nil
}

func transitionAllowed(from, to leads.JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
