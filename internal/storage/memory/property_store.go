package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acreleads/realtime-lead-engine/internal/leads"
)

// PropertyStore holds the append-only property lists per job together with
// the lead status tracker. Lead identity is derived from (job id, insertion
// index), so no external key generator is needed.
type PropertyStore struct {
	mu       sync.RWMutex
	props    map[string][]leads.Property
	order    []string
	statuses map[string]statusEntry
	clock    leads.Clock
}

type statusEntry struct {
	status leads.LeadStatus
	at     time.Time
}

// NewPropertyStore constructs a PropertyStore.
func NewPropertyStore(clock leads.Clock) *PropertyStore {
	return &PropertyStore{
		props:    make(map[string][]leads.Property),
		statuses: make(map[string]statusEntry),
		clock:    clock,
	}
}

// InitJob creates the empty property list for a job. It is called when the
// job record is created so webhook appends have a store to land in.
func (s *PropertyStore) InitJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.props[jobID]; exists {
		return fmt.Errorf("init properties for job %s: %w", jobID, leads.ErrJobExists)
	}
	s.props[jobID] = []leads.Property{}
	s.order = append(s.order, jobID)
	return nil
}

// Append stores a property and returns its derived lead identifier. Appending
// to a job with no initialized store is rejected.
func (s *PropertyStore) Append(_ context.Context, jobID string, prop leads.Property) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.props[jobID]
	if !ok {
		return "", fmt.Errorf("append property for job %s: %w", jobID, leads.ErrUnknownJob)
	}
	prop.JobID = jobID
	if prop.ReceivedAt.IsZero() {
		prop.ReceivedAt = s.clock.Now()
	}
	s.props[jobID] = append(list, prop)
	return leads.LeadID(jobID, len(list)), nil
}

// List returns all properties appended for a job, in arrival order.
func (s *PropertyStore) List(_ context.Context, jobID string) ([]leads.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.props[jobID]
	if !ok {
		return nil, fmt.Errorf("list properties for job %s: %w", jobID, leads.ErrUnknownJob)
	}
	out := make([]leads.Property, len(list))
	copy(out, list)
	return out, nil
}

// Tail returns up to n of the most recent properties for a job.
func (s *PropertyStore) Tail(_ context.Context, jobID string, n int) ([]leads.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.props[jobID]
	if !ok {
		return nil, fmt.Errorf("tail properties for job %s: %w", jobID, leads.ErrUnknownJob)
	}
	if n <= 0 {
		return []leads.Property{}, nil
	}
	start := len(list) - n
	if start < 0 {
		start = 0
	}
	out := make([]leads.Property, len(list)-start)
	copy(out, list[start:])
	return out, nil
}

// Count returns the number of properties recorded for a job. Unknown jobs
// count as zero so listings can project over jobs without stores.
func (s *PropertyStore) Count(_ context.Context, jobID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.props[jobID]), nil
}

// AllLeads flattens every job's properties into leads, concatenated in job
// creation order then append order.
func (s *PropertyStore) AllLeads(_ context.Context) ([]leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leads.Lead
	for _, jobID := range s.order {
		for i, prop := range s.props[jobID] {
			out = append(out, s.leadLocked(jobID, i, prop))
		}
	}
	return out, nil
}

// ListNewLeads filters the flattened leads to status new and returns the
// requested 1-based page plus the total count of new leads. Filtering and
// slicing are computed fresh on every call, so total and page contents are
// only consistent within a single call.
func (s *PropertyStore) ListNewLeads(ctx context.Context, page, pageSize int) ([]leads.Lead, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	all, err := s.AllLeads(ctx)
	if err != nil {
		return nil, 0, err
	}
	fresh := make([]leads.Lead, 0, len(all))
	for _, lead := range all {
		if lead.Status == leads.StatusNew {
			fresh = append(fresh, lead)
		}
	}
	start := (page - 1) * pageSize
	if start >= len(fresh) {
		return []leads.Lead{}, len(fresh), nil
	}
	end := start + pageSize
	if end > len(fresh) {
		end = len(fresh)
	}
	return fresh[start:end], len(fresh), nil
}

// GetLead resolves a lead identifier back to its property plus status.
func (s *PropertyStore) GetLead(_ context.Context, leadID string) (leads.Lead, error) {
	jobID, index, err := parseLeadID(leadID)
	if err != nil {
		return leads.Lead{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.props[jobID]
	if !ok || index >= len(list) {
		return leads.Lead{}, fmt.Errorf("get lead %s: %w", leadID, leads.ErrUnknownLead)
	}
	return s.leadLocked(jobID, index, list[index]), nil
}

// SetStatus upserts the outreach status for a lead. The upsert is idempotent;
// reapplying the same status refreshes its timestamp (last write wins).
func (s *PropertyStore) SetStatus(_ context.Context, leadID string, status leads.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[leadID] = statusEntry{status: status, at: s.clock.Now()}
	return nil
}

// GetStatus returns the outreach status for a lead, defaulting to new when no
// entry exists.
func (s *PropertyStore) GetStatus(_ context.Context, leadID string) (leads.LeadStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.statuses[leadID]
	if !ok {
		return leads.StatusNew, nil
	}
	return entry.status, nil
}

func (s *PropertyStore) leadLocked(jobID string, index int, prop leads.Property) leads.Lead {
	id := leads.LeadID(jobID, index)
	status := leads.StatusNew
	if entry, ok := s.statuses[id]; ok {
		status = entry.status
	}
	return leads.Lead{Property: prop, LeadID: id, Status: status}
}

// parseLeadID splits "{jobId}-{index}" on the final dash. Job ids are UUIDs
// and contain dashes themselves.
func parseLeadID(leadID string) (string, int, error) {
	cut := strings.LastIndex(leadID, "-")
	if cut <= 0 || cut == len(leadID)-1 {
		return "", 0, fmt.Errorf("parse lead id %q: %w", leadID, leads.ErrUnknownLead)
	}
	index, err := strconv.Atoi(leadID[cut+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("parse lead id %q: %w", leadID, leads.ErrUnknownLead)
	}
	return leadID[:cut], index, nil
}
