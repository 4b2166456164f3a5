// Package leads defines core types shared across subsystems.
package leads

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a scraping job.
type JobStatus string

// Job status values tracked by the job store. The machine only moves
// forward: starting -> running -> stopped or completed.
const (
	JobStatusStarting  JobStatus = "starting"
	JobStatusRunning   JobStatus = "running"
	JobStatusStopped   JobStatus = "stopped"
	JobStatusCompleted JobStatus = "completed"
)

// Terminal reports whether no further transition out of the status is valid.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusStopped, JobStatusCompleted:
		return true
	default:
		return false
	}
}

// JobParameters captures the scrape configuration requested by the caller and
// forwarded verbatim to the external workflow runner.
type JobParameters struct {
	MinAcres      float64  `json:"minAcres"`
	MaxAcres      float64  `json:"maxAcres"`
	PropertyTypes []string `json:"propertyTypes"`
	Counties      []string `json:"counties"`
	WaitTime      int      `json:"waitTime"`
}

// JobCounters tracks scrape progress reported by the runner.
type JobCounters struct {
	TotalCounties     int `json:"totalCounties"`
	ProcessedCounties int `json:"processedCounties"`
}

// Job is the bookkeeping record for one requested scraping run. Jobs are
// never deleted; they live until process shutdown.
type Job struct {
	ID          string        `json:"id"`
	Status      JobStatus     `json:"status"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     *time.Time    `json:"endTime,omitempty"`
	LastUpdate  *time.Time    `json:"lastUpdate,omitempty"`
	Parameters  JobParameters `json:"parameters"`
	Counters    JobCounters   `json:"counters"`
	ExecutionID string        `json:"executionId,omitempty"`
	Summary     string        `json:"summary,omitempty"`
}

// Property is one discovered property as reported by the runner. Records are
// immutable once stored; only the derived lead status changes.
type Property struct {
	OwnerName       string    `json:"ownerName"`
	PropertyAddress string    `json:"propertyAddress"`
	MailingAddress  string    `json:"mailingAddress"`
	Acreage         float64   `json:"acreage"`
	PropertyValue   float64   `json:"propertyValue"`
	ReceivedAt      time.Time `json:"timestamp"`
	JobID           string    `json:"jobId"`
}

// LeadStatus is the outreach state a reviewer has applied to a lead.
type LeadStatus string

// Lead status values. Absence of a tracker entry means StatusNew.
const (
	StatusNew       LeadStatus = "new"
	StatusContacted LeadStatus = "contacted"
	StatusAutomated LeadStatus = "automated"
)

// Lead is a property projected with its derived identifier and status.
type Lead struct {
	Property
	LeadID string     `json:"leadId"`
	Status LeadStatus `json:"status"`
}

// LeadID derives the stable lead identifier for the property stored at index
// within the given job's list.
func LeadID(jobID string, index int) string {
	return fmt.Sprintf("%s-%d", jobID, index)
}

// TriggerItem wraps everything a dispatch worker needs to start the external
// runner for a freshly created job.
type TriggerItem struct {
	JobID     string
	Params    JobParameters
	Submitted int64
}

// TriggerResult is the observable outcome of one runner invocation.
type TriggerResult struct {
	ExecutionID string
}
