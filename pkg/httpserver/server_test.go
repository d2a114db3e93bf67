package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/predarb/crossvenue-arb/internal/positions"
	"github.com/predarb/crossvenue-arb/pkg/healthprobe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testServer(t *testing.T, tracker *positions.Tracker) *Server {
	t.Helper()
	return New(&Config{
		Port:          "0",
		Logger:        zap.NewNop(),
		HealthChecker: healthprobe.New(),
		Tracker:       tracker,
	})
}

func openPosition(t *testing.T, tracker *positions.Tracker, id string, cost float64) {
	t.Helper()
	require.NoError(t, tracker.Reserve(cost))
	require.NoError(t, tracker.Open(&positions.Position{
		ID:       id,
		Strategy: "cross_venue",
		Cost:     cost,
		State:    positions.PositionOpen,
		OpenedAt: time.Now(),
	}, cost))
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestReadyEndpointGatesOnReadiness(t *testing.T) {
	hc := healthprobe.New()
	s := New(&Config{Port: "0", Logger: zap.NewNop(), HealthChecker: hc})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	hc.SetReady(true)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crossvenue_arb_")
}

func TestPositionsEndpoint(t *testing.T) {
	tracker := positions.NewTracker(positions.Config{
		CapitalCeiling: 1000,
		Logger:         zap.NewNop(),
	})
	openPosition(t, tracker, "p1", 95)
	openPosition(t, tracker, "p2", 50)
	require.NoError(t, tracker.Settle("p2", 60))

	s := testServer(t, tracker)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count     int                  `json:"count"`
		Positions []positions.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	// Active filter excludes the settled position.
	req = httptest.NewRequest(http.MethodGet, "/api/positions?active=true", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "p1", body.Positions[0].ID)
}

func TestStatsEndpoint(t *testing.T) {
	tracker := positions.NewTracker(positions.Config{
		CapitalCeiling: 1000,
		Logger:         zap.NewNop(),
	})
	openPosition(t, tracker, "p1", 95)
	openPosition(t, tracker, "p2", 50)
	require.NoError(t, tracker.Settle("p2", 60))

	s := testServer(t, tracker)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats positions.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.Settled)
	assert.Equal(t, 95.0, stats.Committed)
	assert.Equal(t, 10.0, stats.RealizedPnL)
}

func TestShutdown(t *testing.T) {
	s := testServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
