package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
	"github.com/acreleads/realtime-lead-engine/internal/config"
	"github.com/acreleads/realtime-lead-engine/internal/dispatcher"
	"github.com/acreleads/realtime-lead-engine/internal/leads"
	queuememory "github.com/acreleads/realtime-lead-engine/internal/queue/memory"
	"github.com/acreleads/realtime-lead-engine/internal/storage/memory"
)

const (
	testAuthHeader = "X-Webhook-Auth"
	testAuthToken  = "secret-token"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeIDGen struct {
	mu   sync.Mutex
	next int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("job-%d", g.next), nil
}

// captureConn records every broadcast frame a test run produces.
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

type testEnv struct {
	server *Server
	jobs   *memory.JobStore
	props  *memory.PropertyStore
	queue  *queuememory.Queue
	hub    *broadcast.Hub
	conn   *captureConn
	clock  *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
	jobs := memory.NewJobStore(clock)
	props := memory.NewPropertyStore(clock)
	queue := queuememory.NewQueue(8)
	conn := &captureConn{}
	hub := broadcast.NewHub(zap.NewNop())
	hub.Register(conn)

	cfg := config.Config{
		Server: config.ServerConfig{Port: 5000},
		Runner: config.RunnerConfig{
			BaseURL:           "http://localhost:5678",
			WebhookAuthHeader: testAuthHeader,
			WebhookAuthToken:  testAuthToken,
			TimeoutSeconds:    5,
		},
		Scraper: config.ScraperConfig{
			DefaultPropertyTypes: []string{"D1", "E1"},
			DefaultWaitTime:      2,
			DefaultMaxAcres:      10000,
		},
		Dispatch: config.DispatchConfig{QueueDepth: 8, Workers: 1},
	}

	// No workers are attached: queued triggers stay queued so tests can
	// inspect them.
	dispatch := dispatcher.New(queue, nil)
	server := NewServer(jobs, props, dispatch, hub, &fakeIDGen{}, clock, cfg, zap.NewNop())

	return &testEnv{server: server, jobs: jobs, props: props, queue: queue, hub: hub, conn: conn, clock: clock}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) doWebhook(t *testing.T, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(testAuthHeader, token)
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// startJob drives the start endpoint and returns the new job id.
func (env *testEnv) startJob(t *testing.T) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/scraping/start", map[string]any{
		"minAcres": 50,
		"counties": []string{"anderson", "henderson"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	jobID, _ := body["jobId"].(string)
	require.NotEmpty(t, jobID)
	return jobID
}

func TestStartScraping(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/scraping/start", map[string]any{
		"minAcres": 50,
		"counties": []string{"anderson", "henderson"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, float64(2), body["totalCounties"])
	jobID := body["jobId"].(string)

	job, err := env.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusStarting, job.Status)
	require.Equal(t, 2, job.Counters.TotalCounties)
	// Omitted parameters come back filled with configured defaults.
	require.Equal(t, []string{"D1", "E1"}, job.Parameters.PropertyTypes)
	require.Equal(t, 2, job.Parameters.WaitTime)
	require.Equal(t, float64(10000), job.Parameters.MaxAcres)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, err := env.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, jobID, item.JobID)
	require.Equal(t, []string{"anderson", "henderson"}, item.Params.Counties)
}

func TestStartScrapingValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing counties", body: map[string]any{"minAcres": 50}},
		{name: "empty counties", body: map[string]any{"minAcres": 50, "counties": []string{}}},
		{name: "min acres too small", body: map[string]any{"minAcres": 0, "counties": []string{"anderson"}}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/scraping/start", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "validation_error", decodeBody(t, rec)["kind"])

			jobs, err := env.jobs.ListJobs(context.Background())
			require.NoError(t, err)
			require.Empty(t, jobs)
		})
	}
}

func TestStopScraping(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	require.NoError(t, env.jobs.Transition(context.Background(), jobID, leads.JobStatusRunning))

	rec := env.do(t, http.MethodPost, "/api/scraping/stop/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["success"])

	job, err := env.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusStopped, job.Status)

	events := env.conn.received()
	require.Len(t, events, 1)
	require.Equal(t, broadcast.TypeJobStopped, events[0].Type)
	require.Equal(t, jobID, events[0].JobID)
}

func TestStopScrapingUnknownJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/scraping/stop/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decodeBody(t, rec)["kind"])
}

// Stopping a job that already finished acks without rebroadcasting.
func TestStopScrapingTerminalJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	require.NoError(t, env.jobs.Transition(context.Background(), jobID, leads.JobStatusCompleted))

	rec := env.do(t, http.MethodPost, "/api/scraping/stop/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	job, err := env.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusCompleted, job.Status)
	require.Empty(t, env.conn.received())
}

func TestGetJobStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	for i := 0; i < 12; i++ {
		_, err := env.props.Append(context.Background(), jobID, leads.Property{
			OwnerName: fmt.Sprintf("Owner %d", i),
		})
		require.NoError(t, err)
	}

	rec := env.do(t, http.MethodGet, "/api/scraping/status/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, float64(12), body["totalProperties"])
	props := body["properties"].([]any)
	require.Len(t, props, 10)
	first := props[0].(map[string]any)
	require.Equal(t, "Owner 2", first["ownerName"])
}

func TestGetJobStatusUnknown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/scraping/status/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobA := env.startJob(t)
	jobB := env.startJob(t)
	_, err := env.props.Append(context.Background(), jobB, leads.Property{OwnerName: "B. Owner"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/scraping/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, float64(2), body["activeJobs"])
	jobs := body["jobs"].([]any)
	require.Len(t, jobs, 2)
	first := jobs[0].(map[string]any)
	second := jobs[1].(map[string]any)
	require.Equal(t, jobA, first["id"])
	require.Equal(t, float64(0), first["totalProperties"])
	require.Equal(t, jobB, second["id"])
	require.Equal(t, float64(1), second["totalProperties"])
}

func TestListLeadsPagination(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	for i := 0; i < 25; i++ {
		_, err := env.props.Append(context.Background(), jobID, leads.Property{
			OwnerName: fmt.Sprintf("Owner %d", i),
		})
		require.NoError(t, err)
	}

	for page, wantLen := range map[int]int{1: 10, 2: 10, 3: 5} {
		rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/leads/?page=%d&size=10", page), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, float64(25), body["total"])
		require.Len(t, body["leads"].([]any), wantLen, "page %d", page)
	}

	rec := env.do(t, http.MethodGet, "/api/leads/?page=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/leads/?size=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactLeads(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := env.props.Append(context.Background(), jobID, leads.Property{
			OwnerName: fmt.Sprintf("Owner %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	rec := env.do(t, http.MethodPost, "/api/leads/contact", map[string]any{
		"leadIds": ids[:2],
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), decodeBody(t, rec)["updated"])

	for _, id := range ids[:2] {
		status, err := env.props.GetStatus(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, leads.StatusContacted, status)
	}
	status, err := env.props.GetStatus(context.Background(), ids[2])
	require.NoError(t, err)
	require.Equal(t, leads.StatusNew, status)
}

func TestContactLeadsRequiresIDs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/leads/contact", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutomateLeadsPartialFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	var ids []string
	for i := 0; i < 2; i++ {
		id, err := env.props.Append(context.Background(), jobID, leads.Property{
			OwnerName: fmt.Sprintf("Owner %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	rec := env.do(t, http.MethodPost, "/api/leads/automate", map[string]any{
		"leadIds": append(ids, jobID+"-99"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, float64(2), body["processed"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	failure := errs[0].(map[string]any)
	require.Equal(t, jobID+"-99", failure["leadId"])

	for _, id := range ids {
		status, err := env.props.GetStatus(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, leads.StatusAutomated, status)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	require.NoError(t, env.jobs.Transition(context.Background(), jobID, leads.JobStatusRunning))

	paths := []string{
		"/webhook/status-update",
		"/webhook/new-properties",
		"/webhook/job-complete",
	}
	for _, path := range paths {
		rec := env.doWebhook(t, path, "wrong-token", map[string]any{"jobId": jobID})
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
		require.Equal(t, "unauthorized", decodeBody(t, rec)["kind"])
	}
	rec := env.doWebhook(t, "/webhook/job-complete", "", map[string]any{"jobId": jobID})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Nothing was mutated and nothing was broadcast.
	job, err := env.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusRunning, job.Status)
	count, err := env.props.Count(context.Background(), jobID)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, env.conn.received())
}

func TestWebhookStatusUpdate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	require.NoError(t, env.jobs.Transition(context.Background(), jobID, leads.JobStatusRunning))

	rec := env.doWebhook(t, "/webhook/status-update", testAuthToken, map[string]any{
		"jobId":          jobID,
		"processedCount": 4,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	job, err := env.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, 4, job.Counters.ProcessedCounties)
	require.NotNil(t, job.LastUpdate)

	events := env.conn.received()
	require.Len(t, events, 1)
	require.Equal(t, broadcast.TypeStatusUpdate, events[0].Type)
	require.Equal(t, 4, events[0].ProcessedCount)
	require.Equal(t, "processing county records", events[0].Message)
}

// Progress for jobs this service never started is acked and dropped so the
// runner does not retry forever.
func TestWebhookStatusUpdateUnknownJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.doWebhook(t, "/webhook/status-update", testAuthToken, map[string]any{
		"jobId":          "missing",
		"processedCount": 4,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "status update dropped", decodeBody(t, rec)["message"])
	require.Empty(t, env.conn.received())
}

func TestWebhookNewProperties(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)

	rec := env.doWebhook(t, "/webhook/new-properties", testAuthToken, map[string]any{
		"jobId": jobID,
		"property": map[string]any{
			"ownerName":       "A. Rancher",
			"propertyAddress": "100 County Rd",
			"acreage":         250.0,
			"propertyValue":   1200000.0,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	leadID := body["leadId"].(string)
	require.Equal(t, jobID+"-0", leadID)

	lead, err := env.props.GetLead(context.Background(), leadID)
	require.NoError(t, err)
	require.Equal(t, "A. Rancher", lead.OwnerName)
	require.Equal(t, jobID, lead.JobID)
	require.False(t, lead.ReceivedAt.IsZero())

	events := env.conn.received()
	require.Len(t, events, 1)
	require.Equal(t, broadcast.TypeNewProperty, events[0].Type)
	require.NotNil(t, events[0].Property)
	require.Equal(t, "A. Rancher", events[0].Property.OwnerName)
}

func TestWebhookNewPropertiesInvalidPayload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing property", body: map[string]any{"jobId": jobID}},
		{name: "missing owner name", body: map[string]any{
			"jobId":    jobID,
			"property": map[string]any{"propertyAddress": "100 County Rd"},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.doWebhook(t, "/webhook/new-properties", testAuthToken, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "invalid_payload", decodeBody(t, rec)["kind"])
		})
	}

	count, err := env.props.Count(context.Background(), jobID)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, env.conn.received())
}

func TestWebhookNewPropertiesUnknownJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.doWebhook(t, "/webhook/new-properties", testAuthToken, map[string]any{
		"jobId":    "missing",
		"property": map[string]any{"ownerName": "A. Rancher"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "property dropped", decodeBody(t, rec)["message"])
	require.Empty(t, env.conn.received())
}

func TestWebhookJobComplete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	require.NoError(t, env.jobs.Transition(context.Background(), jobID, leads.JobStatusRunning))

	rec := env.doWebhook(t, "/webhook/job-complete", testAuthToken, map[string]any{
		"jobId":           jobID,
		"totalProperties": 7,
		"summary":         "found 7 properties in 2 counties",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	job, err := env.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusCompleted, job.Status)
	require.Equal(t, "found 7 properties in 2 counties", job.Summary)
	require.NotNil(t, job.EndTime)

	events := env.conn.received()
	require.Len(t, events, 1)
	require.Equal(t, broadcast.TypeJobComplete, events[0].Type)
	require.Equal(t, 7, events[0].TotalProperties)
	require.Equal(t, "found 7 properties in 2 counties", events[0].Summary)
}

func TestWebhookJobCompleteAlreadyTerminal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobID := env.startJob(t)
	require.NoError(t, env.jobs.Transition(context.Background(), jobID, leads.JobStatusStopped))

	rec := env.doWebhook(t, "/webhook/job-complete", testAuthToken, map[string]any{
		"jobId": jobID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "completion dropped", decodeBody(t, rec)["message"])

	job, err := env.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusStopped, job.Status)
	require.Empty(t, env.conn.received())
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.startJob(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, float64(1), body["activeJobs"])
}
