package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/leads"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// listLeads handles GET /api/leads?page=&size=. Only leads still in new
// status are returned; filtering and pagination are recomputed on every call.
func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	page, size, err := parsePageSize(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	pageLeads, total, err := s.propStore.ListNewLeads(r.Context(), page, size)
	if err != nil {
		s.writeInternal(w, "failed to list leads", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leads": pageLeads,
		"page":  page,
		"size":  size,
		"total": total,
	})
}

type leadIDsRequest struct {
	LeadIDs []string `json:"leadIds"`
}

// contactLeads bulk-upserts the given lead ids to contacted.
func (s *Server) contactLeads(w http.ResponseWriter, r *http.Request) {
	var req leadIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LeadIDs == nil {
		writeError(w, http.StatusBadRequest, kindValidation, "leadIds array required")
		return
	}
	for _, id := range req.LeadIDs {
		if err := s.propStore.SetStatus(r.Context(), id, leads.StatusContacted); err != nil {
			s.writeInternal(w, "failed to update lead status", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"updated": len(req.LeadIDs),
	})
}

type automateRequest struct {
	LeadIDs  []string       `json:"leadIds"`
	Template map[string]any `json:"batchConfig"`
}

type automateError struct {
	LeadID string `json:"leadId"`
	Error  string `json:"error"`
}

// automateLeads dispatches outreach for each lead independently, collecting
// per-lead errors instead of aborting the batch on first failure.
func (s *Server) automateLeads(w http.ResponseWriter, r *http.Request) {
	var req automateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LeadIDs == nil {
		writeError(w, http.StatusBadRequest, kindValidation, "leadIds array required")
		return
	}

	processed := 0
	errs := []automateError{}
	for _, id := range req.LeadIDs {
		lead, err := s.propStore.GetLead(r.Context(), id)
		if err != nil {
			if errors.Is(err, leads.ErrUnknownLead) {
				errs = append(errs, automateError{LeadID: id, Error: "unknown lead"})
				continue
			}
			errs = append(errs, automateError{LeadID: id, Error: err.Error()})
			continue
		}
		if err := s.propStore.SetStatus(r.Context(), id, leads.StatusAutomated); err != nil {
			errs = append(errs, automateError{LeadID: id, Error: err.Error()})
			continue
		}
		s.logger.Info("lead queued for outreach",
			zap.String("lead_id", id),
			zap.String("owner", lead.OwnerName),
		)
		processed++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": processed,
		"errors":    errs,
	})
}

func parsePageSize(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	page := 1
	if pageStr := q.Get("page"); pageStr != "" {
		val, err := strconv.Atoi(pageStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid page")
		}
		page = val
	}
	size := defaultPageSize
	if sizeStr := q.Get("size"); sizeStr != "" {
		val, err := strconv.Atoi(sizeStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid size")
		}
		if val > maxPageSize {
			val = maxPageSize
		}
		size = val
	}
	return page, size, nil
}
