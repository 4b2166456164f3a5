package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
	"github.com/acreleads/realtime-lead-engine/internal/leads"
	"github.com/acreleads/realtime-lead-engine/internal/metrics"
)

const enqueueTimeout = 5 * time.Second

type startRequest struct {
	MinAcres      float64  `json:"minAcres"`
	MaxAcres      float64  `json:"maxAcres"`
	PropertyTypes []string `json:"propertyTypes"`
	Counties      []string `json:"counties"`
	WaitTime      int      `json:"waitTime"`
}

// startScraping creates the job record and its property store, then hands the
// runner trigger to the dispatch queue. The job is never rolled back if the
// trigger later fails; it stays visible in starting status.
func (s *Server) startScraping(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid JSON")
		return
	}
	if len(req.Counties) == 0 {
		writeError(w, http.StatusBadRequest, kindValidation, "counties array is required")
		return
	}
	if req.MinAcres < 1 {
		writeError(w, http.StatusBadRequest, kindValidation, "minimum acreage must be at least 1")
		return
	}

	params := s.applyScraperDefaults(leads.JobParameters{
		MinAcres:      req.MinAcres,
		MaxAcres:      req.MaxAcres,
		PropertyTypes: req.PropertyTypes,
		Counties:      req.Counties,
		WaitTime:      req.WaitTime,
	})

	jobID, err := s.idGen.NewID()
	if err != nil {
		s.writeInternal(w, "failed to generate job id", err)
		return
	}
	now := s.clock.Now()
	job := leads.Job{
		ID:         jobID,
		Status:     leads.JobStatusStarting,
		StartTime:  now,
		Parameters: params,
		Counters:   leads.JobCounters{TotalCounties: len(params.Counties)},
	}
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		s.writeInternal(w, "failed to create job", err)
		return
	}
	if err := s.propStore.InitJob(r.Context(), jobID); err != nil {
		s.writeInternal(w, "failed to initialize property store", err)
		return
	}
	metrics.ObserveJob(string(leads.JobStatusStarting))

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	item := leads.TriggerItem{
		JobID:     jobID,
		Params:    params,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		// The job record is kept so operators can see the failed attempt.
		s.logger.Error("trigger enqueue failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, kindUpstream, "failed to schedule runner trigger")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"jobId":         jobID,
		"message":       "property scraping job started",
		"totalCounties": len(params.Counties),
	})
}

// stopScraping marks local bookkeeping only; the external runner is not
// signaled to halt.
func (s *Server) stopScraping(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	err := s.jobStore.Transition(r.Context(), jobID, leads.JobStatusStopped)
	switch {
	case errors.Is(err, leads.ErrNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, "job not found")
		return
	case errors.Is(err, leads.ErrInvalidTransition):
		// Already terminal; ignored, not fatal.
		s.logger.Info("stop ignored for terminal job", zap.String("job_id", jobID))
	case err != nil:
		s.writeInternal(w, "failed to stop job", err)
		return
	default:
		metrics.ObserveJob(string(leads.JobStatusStopped))
		s.hub.Publish(broadcast.Event{
			Type:  broadcast.TypeJobStopped,
			TS:    s.clock.Now(),
			JobID: jobID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "scraping job stopped",
		"jobId":   jobID,
	})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, kindNotFound, "job not found")
		return
	}
	total, err := s.propStore.Count(r.Context(), jobID)
	if err != nil {
		s.writeInternal(w, "failed to count properties", err)
		return
	}
	tail, err := s.propStore.Tail(r.Context(), jobID, 10)
	if err != nil {
		s.writeInternal(w, "failed to load recent properties", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job":             job,
		"totalProperties": total,
		"properties":      tail,
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobStore.ListJobs(r.Context())
	if err != nil {
		s.writeInternal(w, "failed to list jobs", err)
		return
	}
	out := make([]jobListEntry, 0, len(jobs))
	for _, job := range jobs {
		count, err := s.propStore.Count(r.Context(), job.ID)
		if err != nil {
			s.writeInternal(w, "failed to count properties", err)
			return
		}
		out = append(out, jobListEntry{Job: job, TotalProperties: count})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activeJobs": len(out),
		"jobs":       out,
	})
}

type jobListEntry struct {
	leads.Job
	TotalProperties int `json:"totalProperties"`
}

func (s *Server) applyScraperDefaults(params leads.JobParameters) leads.JobParameters {
	if len(params.PropertyTypes) == 0 {
		params.PropertyTypes = append([]string(nil), s.cfg.Scraper.DefaultPropertyTypes...)
	}
	if params.WaitTime <= 0 {
		params.WaitTime = s.cfg.Scraper.DefaultWaitTime
	}
	if params.MaxAcres <= 0 {
		params.MaxAcres = s.cfg.Scraper.DefaultMaxAcres
	}
	return params
}
