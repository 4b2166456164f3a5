package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/acreleads/realtime-lead-engine/internal/leads"
)

// Type tags a broadcast event variant. The set is closed; producers and
// consumers switch over it exhaustively.
type Type string

// Supported broadcast event types.
const (
	TypeJobStarted   Type = "job_started"
	TypeJobStopped   Type = "job_stopped"
	TypeJobComplete  Type = "job_complete"
	TypeStatusUpdate Type = "status_update"
	TypeNewProperty  Type = "new_property"
)

// Event is the transient payload pushed to every connected viewer. Events are
// never stored; a viewer that is not connected simply misses them.
type Event struct {
	Type Type `json:"type"`
	// TS is the UTC timestamp recorded by the publisher.
	TS time.Time `json:"timestamp"`
	// JobID scopes the event to a job; empty only for malformed events.
	JobID string `json:"jobId,omitempty"`
	// TotalCounties and acreage bounds accompany job_started.
	TotalCounties int     `json:"totalCounties,omitempty"`
	MinAcres      float64 `json:"minAcres,omitempty"`
	MaxAcres      float64 `json:"maxAcres,omitempty"`
	// ProcessedCount and Message accompany status_update.
	ProcessedCount int    `json:"processedCount,omitempty"`
	Message        string `json:"message,omitempty"`
	// TotalProperties and Summary accompany job_complete.
	TotalProperties int    `json:"totalProperties,omitempty"`
	Summary         string `json:"summary,omitempty"`
	// Property accompanies new_property.
	Property *leads.Property `json:"property,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeJobStarted, TypeJobStopped, TypeJobComplete, TypeStatusUpdate:
		if e.JobID == "" {
			return fmt.Errorf("%s requires job id", e.Type)
		}
	case TypeNewProperty:
		if e.JobID == "" {
			return fmt.Errorf("%s requires job id", e.Type)
		}
		if e.Property == nil {
			return errors.New("new_property requires a property")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Encode serializes the event to its wire form once, so Publish can reuse the
// same bytes for every connection.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return data, nil
}
