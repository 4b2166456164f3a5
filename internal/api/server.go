// Package api exposes the HTTP and websocket interface for the lead engine.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
	"github.com/acreleads/realtime-lead-engine/internal/config"
	"github.com/acreleads/realtime-lead-engine/internal/dispatcher"
	"github.com/acreleads/realtime-lead-engine/internal/leads"
	"github.com/acreleads/realtime-lead-engine/internal/metrics"
)

// Error kinds returned in the machine-readable "kind" field.
const (
	kindValidation   = "validation_error"
	kindUnauthorized = "unauthorized"
	kindNotFound     = "not_found"
	kindPayload      = "invalid_payload"
	kindUpstream     = "upstream_failure"
	kindInternal     = "internal"
)

// Server wires HTTP handlers to the stores, the dispatcher, and the hub.
type Server struct {
	router     chi.Router
	jobStore   leads.JobStore
	propStore  leads.PropertyStore
	dispatcher *dispatcher.Dispatcher
	hub        *broadcast.Hub
	idGen      leads.IDGenerator
	clock      leads.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore leads.JobStore,
	propStore leads.PropertyStore,
	dispatch *dispatcher.Dispatcher,
	hub *broadcast.Hub,
	idGen leads.IDGenerator,
	clock leads.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:   jobStore,
		propStore:  propStore,
		dispatcher: dispatch,
		hub:        hub,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	// The websocket upgrade hijacks the connection, so it stays outside the
	// timeout handler.
	r.Get("/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(60 * time.Second))

		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Handle("/metrics", metrics.Handler())
		r.Get("/api/health", s.health)

		r.Route("/api/scraping", func(r chi.Router) {
			r.Post("/start", s.startScraping)
			r.Post("/stop/{job_id}", s.stopScraping)
			r.Get("/status/{job_id}", s.getJobStatus)
			r.Get("/jobs", s.listJobs)
		})

		r.Route("/api/leads", func(r chi.Router) {
			r.Get("/", s.listLeads)
			r.Post("/contact", s.contactLeads)
			r.Post("/automate", s.automateLeads)
		})

		r.Route("/webhook", func(r chi.Router) {
			r.Use(s.webhookAuth)
			r.Post("/status-update", s.webhookStatusUpdate)
			r.Post("/new-properties", s.webhookNewProperties)
			r.Post("/job-complete", s.webhookJobComplete)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// All dependencies are in memory; readiness equals liveness.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobStore.ListJobs(r.Context())
	if err != nil {
		s.writeInternal(w, "health check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"service":    "realtime-lead-engine",
		"timestamp":  s.clock.Now().Format(time.RFC3339),
		"activeJobs": len(jobs),
	})
}

func (s *Server) writeInternal(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, kindInternal, msg)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "kind": kind})
}
