package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outflowhq/outflow/config"
	"github.com/outflowhq/outflow/contacts"
	"github.com/outflowhq/outflow/dispatch"
	"github.com/outflowhq/outflow/internal/metrics"
	outflowtest "github.com/outflowhq/outflow/internal/testing"
	"github.com/outflowhq/outflow/maintenance"
	"github.com/outflowhq/outflow/outreach"
	"github.com/outflowhq/outflow/webhookq"
)

// newTestServer wires a full server against an in-memory database with the
// logging sender, mirroring the serve command's construction.
func newTestServer(t *testing.T, triggerSecret string) *httptest.Server {
	t.Helper()

	conn := outflowtest.CreateTestDB(t)
	log := zap.NewNop().Sugar()
	cfg := config.Default()
	cfg.Server.TriggerSecret = triggerSecret

	windowStore := dispatch.NewWindowStore(conn, log)
	runStore := dispatch.NewRunStore(conn)
	eventStore := webhookq.NewStore(conn)
	jobStore := outreach.NewStore(conn)
	contactStore := contacts.NewStore(conn)

	sender := outreach.NewLogSender(log)
	executor := outreach.NewExecutor(jobStore, eventStore, sender,
		outreach.EventConfig{MaxAttempts: cfg.Queue.MaxAttempts}, log)

	registry := webhookq.NewRegistry()
	registry.Register(outreach.NewDeliveryHandler(jobStore, sender, log))

	dispatcher := dispatch.NewDispatcher(windowStore, runStore, jobStore, executor, cfg.Dispatch, log)
	runner := webhookq.NewRunner(eventStore, registry, cfg.Queue, log)
	sweeper := maintenance.NewSweeper(runStore, eventStore, contactStore, jobStore,
		cfg.Dispatch, cfg.Maintenance, log)

	srv := New(dispatcher, runner, sweeper, metrics.NewCollector(), cfg.Server, log)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestTriggerEndpointsDisabledWithoutSecret(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/api/trigger/dispatch", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTriggerRejectsBadSecret(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/trigger/dispatch", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTriggerRejectsMissingSecret(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	resp, err := http.Post(ts.URL+"/api/trigger/dispatch", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTriggerAcceptsSecretCarriers(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	carriers := map[string]func(*http.Request){
		"bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer sekrit") },
		"header": func(r *http.Request) { r.Header.Set("X-Outflow-Secret", "sekrit") },
		"query":  func(r *http.Request) { r.URL.RawQuery = "secret=sekrit" },
	}
	for name, apply := range carriers {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/trigger/queue", nil)
			require.NoError(t, err)
			apply(req)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestTriggerDispatchReturnsSummary(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/trigger/dispatch?source=test-sched", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekrit")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary dispatch.CycleSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.False(t, summary.Suppressed)
	assert.Zero(t, summary.Enqueued)

	// Same window again: the duplicate is suppressed but still a 200.
	resp2, err := http.DefaultClient.Do(req.Clone(req.Context()))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&summary))
	assert.True(t, summary.Suppressed)
}

func TestTriggerMaintenanceReturnsReport(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/trigger/maintenance", nil)
	require.NoError(t, err)
	req.Header.Set("X-Outflow-Secret", "sekrit")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report maintenance.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.True(t, report.QueueStaleness.Ran)
	assert.False(t, report.HasErrors())
}

func TestTriggerRejectsWrongMethod(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/trigger/dispatch", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekrit")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
