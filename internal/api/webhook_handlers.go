package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
	"github.com/acreleads/realtime-lead-engine/internal/leads"
	"github.com/acreleads/realtime-lead-engine/internal/metrics"
)

const defaultProgressMessage = "processing county records"

// webhookAuth rejects callbacks that do not present the shared secret in the
// configured header. Rejected requests perform no mutation.
func (s *Server) webhookAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(s.cfg.Runner.WebhookAuthHeader)
		want := s.cfg.Runner.WebhookAuthToken
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.logger.Warn("unauthorized webhook request",
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
			)
			writeError(w, http.StatusUnauthorized, kindUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusUpdateRequest struct {
	JobID          string `json:"jobId"`
	ProcessedCount int    `json:"processedCount"`
	Message        string `json:"message"`
}

// webhookStatusUpdate records scrape progress and republishes it. Updates for
// unknown or already-terminal jobs are dropped with a warning; late webhook
// delivery is tolerated, not fatal.
func (s *Server) webhookStatusUpdate(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindPayload, "invalid JSON")
		return
	}

	if err := s.jobStore.RecordProgress(r.Context(), req.JobID, req.ProcessedCount); err != nil {
		s.logger.Warn("status update dropped", zap.String("job_id", req.JobID), zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "status update dropped"})
		return
	}

	message := req.Message
	if message == "" {
		message = defaultProgressMessage
	}
	s.hub.Publish(broadcast.Event{
		Type:           broadcast.TypeStatusUpdate,
		TS:             s.clock.Now(),
		JobID:          req.JobID,
		ProcessedCount: req.ProcessedCount,
		Message:        message,
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "status update received"})
}

type newPropertyRequest struct {
	JobID    string          `json:"jobId"`
	Property *leads.Property `json:"property"`
}

// webhookNewProperties appends one discovered property. Payloads missing an
// owner name are rejected without mutation; each accepted call appends, so
// the runner is responsible for not resubmitting the same property.
func (s *Server) webhookNewProperties(w http.ResponseWriter, r *http.Request) {
	var req newPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindPayload, "invalid JSON")
		return
	}
	if req.Property == nil || req.Property.OwnerName == "" {
		s.logger.Warn("invalid property payload", zap.String("job_id", req.JobID))
		writeError(w, http.StatusBadRequest, kindPayload, "invalid property data")
		return
	}

	prop := *req.Property
	if prop.ReceivedAt.IsZero() {
		prop.ReceivedAt = s.clock.Now()
	}
	leadID, err := s.propStore.Append(r.Context(), req.JobID, prop)
	if err != nil {
		if errors.Is(err, leads.ErrUnknownJob) {
			s.logger.Warn("property for unknown job dropped", zap.String("job_id", req.JobID))
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "property dropped"})
			return
		}
		s.writeInternal(w, "failed to store property", err)
		return
	}
	if err := s.jobStore.Touch(r.Context(), req.JobID); err != nil {
		s.logger.Warn("touch job failed", zap.String("job_id", req.JobID), zap.Error(err))
	}

	prop.JobID = req.JobID
	s.hub.Publish(broadcast.Event{
		Type:     broadcast.TypeNewProperty,
		TS:       s.clock.Now(),
		JobID:    req.JobID,
		Property: &prop,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "property data received",
		"leadId":  leadID,
	})
}

type jobCompleteRequest struct {
	JobID           string `json:"jobId"`
	TotalProperties int    `json:"totalProperties"`
	Summary         string `json:"summary"`
}

// webhookJobComplete marks the job completed and republishes the completion.
func (s *Server) webhookJobComplete(w http.ResponseWriter, r *http.Request) {
	var req jobCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindPayload, "invalid JSON")
		return
	}

	if err := s.jobStore.Transition(r.Context(), req.JobID, leads.JobStatusCompleted); err != nil {
		s.logger.Warn("completion dropped", zap.String("job_id", req.JobID), zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "completion dropped"})
		return
	}
	if err := s.jobStore.RecordSummary(r.Context(), req.JobID, req.Summary); err != nil {
		s.logger.Warn("record summary failed", zap.String("job_id", req.JobID), zap.Error(err))
	}
	metrics.ObserveJob(string(leads.JobStatusCompleted))

	summary := req.Summary
	if summary == "" {
		summary = "property scraping completed"
	}
	s.hub.Publish(broadcast.Event{
		Type:            broadcast.TypeJobComplete,
		TS:              s.clock.Now(),
		JobID:           req.JobID,
		TotalProperties: req.TotalProperties,
		Summary:         summary,
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "job completion received"})
}
