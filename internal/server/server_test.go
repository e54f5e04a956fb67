package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/phaselock/internal/config"
	"github.com/aristath/phaselock/internal/di"
	"github.com/aristath/phaselock/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	cfg := &config.Config{
		DataDir: t.TempDir(),
		DevMode: true,
		Engine: config.EngineConfig{
			MaxIterations:        50,
			Tolerance:            0.01,
			RefinementIterations: 5,
			ScoreThreshold:       80,
			LearningRate:         0.1,
			Shots:                100,
			Workers:              2,
		},
		Archive:             config.ArchiveConfig{Region: "auto", Prefix: "reports"},
		MaintenanceSchedule: "0 0 3 * * *",
		RunRetentionDays:    30,
	}

	container, err := di.Wire(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	s := New(Config{Log: logger, Config: cfg, Port: 0, DevMode: true, Container: container})
	s.systemHandlers.cpuPercent = func() (float64, error) { return 12.5, nil }
	s.systemHandlers.memPercent = func() (float64, error) { return 40, nil }
	return s
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	w := serve(s, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "phaselock", response["service"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupServer(t)

	// Run once so the engine collectors have samples.
	w := serve(s, "POST", "/api/runs/sync", `{"backend":"mean_field","units":4}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(s, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "phaselock_runs_total")
}

func TestSystemStatus(t *testing.T) {
	s := setupServer(t)

	w := serve(s, "GET", "/api/system/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response SystemStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.True(t, response.DatabaseHealthy)
	assert.Equal(t, 12.5, response.CPUPercent)
	assert.Equal(t, 40.0, response.MemoryPercent)
	assert.Equal(t, 0, response.QueuePending)
	assert.Equal(t, 1, response.ScheduledJobs)
}

func TestDatabaseStats(t *testing.T) {
	s := setupServer(t)

	w := serve(s, "GET", "/api/system/database", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "runs", response["name"])
	assert.Greater(t, response["page_count"], float64(0))
}

func TestRunRoutesMounted(t *testing.T) {
	s := setupServer(t)

	w := serve(s, "POST", "/api/runs", `{"backend":"exact","target_pattern":"10"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, s.container.Processor.Pending())

	w = serve(s, "GET", "/api/runs", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerMaintenance(t *testing.T) {
	s := setupServer(t)

	w := serve(s, "POST", "/api/jobs/maintenance", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, s.container.Processor.Pending())
}

func TestRunStream(t *testing.T) {
	s := setupServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/runs/stream", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	manager := s.container.EventManager
	require.Eventually(t, func() bool { return manager.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	manager.Emit("runs", &events.RunCompletedData{RunID: "r1", Status: "converged"})

	var got map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, string(events.RunCompleted), got["type"])
}
