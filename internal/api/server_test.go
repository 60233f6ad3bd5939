package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/metrics"
	"github.com/civicdata/gemeinden-extractor/internal/pipeline"
)

type fakeStatus struct {
	snap pipeline.Snapshot
}

func (f *fakeStatus) LastRun() pipeline.Snapshot { return f.snap }

func newTestServer(t *testing.T, status StatusSource) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	m.JobFinished(true, 10*time.Millisecond)

	srv := httptest.NewServer(NewServer(status, m, reg, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeStatus{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestStatusReturnsLastRun(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	status := &fakeStatus{snap: pipeline.Snapshot{
		RunID:      "run-abc",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Dispatched: 396,
		Succeeded:  385,
		Partial:    5,
		Fallbacks:  6,
	}}
	srv := newTestServer(t, status)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap pipeline.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "run-abc", snap.RunID)
	assert.Equal(t, 396, snap.Dispatched)
	assert.Equal(t, 5, snap.Partial)
	assert.Equal(t, 6, snap.Fallbacks)
}

func TestStatusWithoutPipeline(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeStatus{})

	warm, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	warm.Body.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "extractor_jobs_total")
	assert.Contains(t, string(body), `extractor_http_requests_total{method="GET",route="/healthz",status="200"}`)
}
