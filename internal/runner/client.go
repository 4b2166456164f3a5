// Package runner implements the outbound HTTP client for the external
// workflow runner. The trigger call is the only outbound surface: the runner
// reports everything else back through webhooks.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/leads"
)

const triggerPath = "/webhook/start-property-scraping"

// Trigger failure modes. Timeout is recoverable bookkeeping-wise: the job
// stays visible in starting status and is never rolled back.
var (
	ErrTriggerTimeout = errors.New("runner trigger timed out")
	ErrTriggerFailed  = errors.New("runner trigger failed")
)

// Config controls Client behavior.
type Config struct {
	BaseURL           string
	APIKey            string
	WebhookAuthHeader string
	WebhookAuthToken  string
	Timeout           time.Duration
}

// Client triggers scraping workflows on the external runner.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New constructs a Client with the configured per-call timeout.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type triggerPayload struct {
	leads.JobParameters
	JobID string `json:"jobId"`
}

type triggerResponse struct {
	ExecutionID string `json:"executionId"`
}

// Trigger asks the runner to begin scraping for the given job. The payload
// carries the full job configuration plus the job identifier so the runner
// can correlate its asynchronous callbacks.
func (c *Client) Trigger(ctx context.Context, jobID string, params leads.JobParameters) (leads.TriggerResult, error) {
	body, err := json.Marshal(triggerPayload{JobParameters: params, JobID: jobID})
	if err != nil {
		return leads.TriggerResult{}, fmt.Errorf("marshal trigger payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+triggerPath, bytes.NewReader(body))
	if err != nil {
		return leads.TriggerResult{}, fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Runner-API-Key", c.cfg.APIKey)
	}
	if c.cfg.WebhookAuthHeader != "" {
		req.Header.Set(c.cfg.WebhookAuthHeader, c.cfg.WebhookAuthToken)
	}

	c.logger.Info("triggering runner workflow",
		zap.String("job_id", jobID),
		zap.String("url", c.cfg.BaseURL+triggerPath),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return leads.TriggerResult{}, fmt.Errorf("trigger job %s: %w", jobID, ErrTriggerTimeout)
		}
		return leads.TriggerResult{}, fmt.Errorf("trigger job %s: %w: %v", jobID, ErrTriggerFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return leads.TriggerResult{}, fmt.Errorf("trigger job %s: %w: status %d",
			jobID, ErrTriggerFailed, resp.StatusCode)
	}

	var decoded triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		// Some runner versions acknowledge with an empty body.
		c.logger.Debug("runner trigger response had no execution id", zap.String("job_id", jobID))
		return leads.TriggerResult{}, nil
	}
	return leads.TriggerResult{ExecutionID: decoded.ExecutionID}, nil
}
