package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
	"github.com/acreleads/realtime-lead-engine/internal/leads"
	queuememory "github.com/acreleads/realtime-lead-engine/internal/queue/memory"
	"github.com/acreleads/realtime-lead-engine/internal/runner"
	"github.com/acreleads/realtime-lead-engine/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeRunner struct {
	mu     sync.Mutex
	result leads.TriggerResult
	err    error
	calls  []string
}

func (r *fakeRunner) Trigger(_ context.Context, jobID string, _ leads.JobParameters) (leads.TriggerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, jobID)
	return r.result, r.err
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type captureConn struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (c *captureConn) Send(data []byte) error {
	var evt broadcast.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureConn) Close() error { return nil }

func (c *captureConn) received() []broadcast.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]broadcast.Event, len(c.events))
	copy(out, c.events)
	return out
}

type workerEnv struct {
	queue  *queuememory.Queue
	jobs   *memory.JobStore
	runner *fakeRunner
	conn   *captureConn
	worker *Worker
}

func newWorkerEnv(t *testing.T, run *fakeRunner) *workerEnv {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
	queue := queuememory.NewQueue(4)
	jobs := memory.NewJobStore(clock)
	conn := &captureConn{}
	hub := broadcast.NewHub(zap.NewNop())
	hub.Register(conn)

	return &workerEnv{
		queue:  queue,
		jobs:   jobs,
		runner: run,
		conn:   conn,
		worker: New(queue, jobs, run, hub, clock, zap.NewNop()),
	}
}

func seedJob(t *testing.T, env *workerEnv, jobID string) leads.TriggerItem {
	t.Helper()
	params := leads.JobParameters{
		MinAcres: 50,
		MaxAcres: 500,
		Counties: []string{"anderson", "henderson"},
	}
	require.NoError(t, env.jobs.CreateJob(context.Background(), leads.Job{
		ID:         jobID,
		Status:     leads.JobStatusStarting,
		Parameters: params,
		Counters:   leads.JobCounters{TotalCounties: len(params.Counties)},
	}))
	return leads.TriggerItem{JobID: jobID, Params: params}
}

func TestWorker_SuccessfulTrigger(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{result: leads.TriggerResult{ExecutionID: "exec-9"}}
	env := newWorkerEnv(t, run)
	item := seedJob(t, env, "job-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)

	require.NoError(t, env.queue.Enqueue(ctx, item))

	require.Eventually(t, func() bool {
		job, err := env.jobs.GetJob(context.Background(), "job-1")
		return err == nil && job.Status == leads.JobStatusRunning
	}, time.Second, 10*time.Millisecond)

	job, err := env.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "exec-9", job.ExecutionID)

	require.Eventually(t, func() bool {
		return len(env.conn.received()) == 1
	}, time.Second, 10*time.Millisecond)
	evt := env.conn.received()[0]
	require.Equal(t, broadcast.TypeJobStarted, evt.Type)
	require.Equal(t, "job-1", evt.JobID)
	require.Equal(t, 2, evt.TotalCounties)
	require.Equal(t, float64(50), evt.MinAcres)
}

func TestWorker_FailedTriggerLeavesJobStarting(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{err: runner.ErrTriggerFailed}
	env := newWorkerEnv(t, run)
	item := seedJob(t, env, "job-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)

	require.NoError(t, env.queue.Enqueue(ctx, item))

	require.Eventually(t, func() bool {
		return run.callCount() == 1
	}, time.Second, 10*time.Millisecond)

	job, err := env.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusStarting, job.Status)
	require.Empty(t, env.conn.received())
}

// A job stopped while its trigger was in flight keeps its stopped status; the
// late success is logged and not broadcast.
func TestWorker_StoppedJobStaysStopped(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{}
	env := newWorkerEnv(t, run)
	item := seedJob(t, env, "job-1")
	require.NoError(t, env.jobs.Transition(context.Background(), "job-1", leads.JobStatusStopped))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)

	require.NoError(t, env.queue.Enqueue(ctx, item))

	require.Eventually(t, func() bool {
		return run.callCount() == 1
	}, time.Second, 10*time.Millisecond)

	job, err := env.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusStopped, job.Status)
	require.Empty(t, env.conn.received())
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	env := newWorkerEnv(t, &fakeRunner{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
