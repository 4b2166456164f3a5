// Package worker executes runner trigger tasks off the dispatch queue.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
	"github.com/acreleads/realtime-lead-engine/internal/leads"
	"github.com/acreleads/realtime-lead-engine/internal/metrics"
	"github.com/acreleads/realtime-lead-engine/internal/runner"
)

// Worker consumes trigger items and invokes the external workflow runner.
// Trigger outcomes are observable: success confirms the job as running and
// publishes job_started; timeout or failure leaves the job in starting status
// so operators can see the failed attempt.
type Worker struct {
	queue  leads.TriggerQueue
	jobs   leads.JobStore
	runner leads.Runner
	hub    *broadcast.Hub
	clock  leads.Clock
	logger *zap.Logger
}

// New constructs a Worker.
func New(
	queue leads.TriggerQueue,
	jobs leads.JobStore,
	run leads.Runner,
	hub *broadcast.Hub,
	clock leads.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		jobs:   jobs,
		runner: run,
		hub:    hub,
		clock:  clock,
		logger: logger,
	}
}

// Run blocks, consuming trigger items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.processTrigger(ctx, item)
	}
}

func (w *Worker) processTrigger(ctx context.Context, item leads.TriggerItem) {
	result, err := w.runner.Trigger(ctx, item.JobID, item.Params)
	if err != nil {
		outcome := "failure"
		if errors.Is(err, runner.ErrTriggerTimeout) {
			outcome = "timeout"
		}
		metrics.ObserveRunnerTrigger(outcome)
		w.logger.Error("runner trigger failed, job stays in starting status",
			zap.String("job_id", item.JobID),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveRunnerTrigger("success")

	if result.ExecutionID != "" {
		if err := w.jobs.RecordExecution(ctx, item.JobID, result.ExecutionID); err != nil {
			w.logger.Warn("record execution id failed", zap.String("job_id", item.JobID), zap.Error(err))
		}
	}

	if err := w.jobs.Transition(ctx, item.JobID, leads.JobStatusRunning); err != nil {
		// The job may have been stopped while the trigger was in flight.
		w.logger.Warn("running transition rejected",
			zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(leads.JobStatusRunning))

	w.hub.Publish(broadcast.Event{
		Type:          broadcast.TypeJobStarted,
		TS:            w.clock.Now(),
		JobID:         item.JobID,
		TotalCounties: len(item.Params.Counties),
		MinAcres:      item.Params.MinAcres,
		MaxAcres:      item.Params.MaxAcres,
	})
}
