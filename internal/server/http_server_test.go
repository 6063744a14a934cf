package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/config"
	"github.com/docpulse/runtime-node/internal/metrics"
	"github.com/docpulse/runtime-node/internal/model"
	"github.com/docpulse/runtime-node/internal/service"
)

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, scope string, kind model.OperationKind, collection string, payload []byte) ([]byte, error) {
	return []byte(`{"results":[]}`), nil
}

func newTestServer(t *testing.T) (*Server, *service.Runtime) {
	t.Helper()

	cfg := config.Default()
	cfg.Node.NodeID = "test-node"
	cfg.Node.DataDir = t.TempDir()
	cfg.Watchdog.Path = cfg.Node.DataDir

	registry := prometheus.NewRegistry()
	rt, err := service.NewRuntime(cfg, stubExecutor{}, metrics.New(registry), zap.NewNop())
	require.NoError(t, err)

	return New(Config{Port: 0, MetricsPath: "/metrics"}, rt, nil, registry, zap.NewNop()), rt
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, rt := newTestServer(t)

	require.NoError(t, rt.ReportOperation("proj-a",
		model.Pattern{Kind: model.OperationQuery, Collection: "docs"}, 2*time.Millisecond, nil))

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap model.HealthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, model.HealthStateHealthy, snap.Status)
	assert.Equal(t, uint64(1), snap.Counts.Queries)
}

func TestServer_Ready(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}

func TestServer_CacheStats(t *testing.T) {
	s, rt := newTestServer(t)

	_, err := rt.LookupOrCompute(context.Background(), "proj-a", "docs", []byte(`{}`), 0)
	require.NoError(t, err)

	rec := get(t, s, "/v1/cache/stats")
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats model.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Entries)
}

func TestServer_Trails(t *testing.T) {
	s, rt := newTestServer(t)

	require.NoError(t, rt.ReportOperation("proj-a",
		model.Pattern{Kind: model.OperationQuery, Collection: "docs"}, 2*time.Millisecond, nil))

	rec := get(t, s, "/v1/trails/proj-a?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docs")

	rec = get(t, s, "/v1/trails/proj-a?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty scope segment fails validation.
	rec = get(t, s, "/v1/trails/")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Smells(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/smells")
	assert.Equal(t, http.StatusOK, rec.Code)

	var report model.SmellReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 0, report.Total)

	rec = get(t, s, "/v1/smells?scope=proj-a")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Jobs(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/jobs")
	assert.Equal(t, http.StatusOK, rec.Code)

	var jobs []model.JobInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 3)
}

func TestServer_Advice(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/advice")
	assert.Equal(t, http.StatusOK, rec.Code)

	var advice model.ScalingRecommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &advice))
	assert.NotEmpty(t, advice.Direction)
}

func TestServer_PeersWithoutGossip(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/peers")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "{}", rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	s, rt := newTestServer(t)

	_, err := rt.LookupOrCompute(context.Background(), "proj-a", "docs", []byte(`{}`), 0)
	require.NoError(t, err)

	rec := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "runtime_operations_total")
}
