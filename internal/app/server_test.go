package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grid-trader/internal/config"
	"grid-trader/internal/monitor"
	"grid-trader/internal/store"
)

func newTestServer(t *testing.T) (*harness, *Scheduler, http.Handler) {
	t.Helper()
	h := newHarness(t)

	db, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	events, err := monitor.NewService(db, nil)
	require.NoError(t, err)
	h.orch.journal = events

	sched := NewScheduler(func(ctx context.Context) { h.orch.Tick(ctx) }, config.SchedulerConfig{}, nil)
	router := newRouter(&server{
		orch:      h.orch,
		scheduler: sched,
		tuning:    h.tuning,
		events:    events,
		journal:   events,
		logger:    zap.NewNop(),
	})
	return h, sched, router
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_StatusReportsCycles(t *testing.T) {
	h, _, router := newTestServer(t)
	h.orch.Tick(context.Background())

	rec := doRequest(t, router, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, uint64(1), status.Cycles)
	assert.True(t, status.Running)
	assert.Equal(t, StateIdle, status.State)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, monitor.OutcomeCompleted, status.LastCycle.Outcome)
}

func TestServer_ResetClearsCounters(t *testing.T) {
	h, _, router := newTestServer(t)
	h.orch.Tick(context.Background())

	rec := doRequest(t, router, http.MethodPost, "/status/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.orch.Status().Cycles)
}

func TestServer_StopSetsFlag(t *testing.T) {
	_, sched, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/stop", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, sched.Stopped())

	rec = doRequest(t, router, http.MethodGet, "/status", nil)
	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Running)
}

func TestServer_UpdateGridConfig(t *testing.T) {
	h, _, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPut, "/config/grid", []byte(`{"total_orders": 10, "interval": 50}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	current := h.tuning.Load()
	assert.Equal(t, 10, current.TotalOrders)
	assert.Equal(t, 50.0, current.Interval)
	assert.Equal(t, 0.12, current.WindowPercent)

	rec = doRequest(t, router, http.MethodGet, "/config/grid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.GridConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, current, got)

	rec = doRequest(t, router, http.MethodGet, "/events?type=config_change", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []monitor.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 1)
}

func TestServer_RejectsInvalidGridConfig(t *testing.T) {
	h, _, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPut, "/config/grid", []byte(`{"sell_ratio": 0.9}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0.5, h.tuning.Load().SellRatio)

	rec = doRequest(t, router, http.MethodPut, "/config/grid", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_EventsListsCycles(t *testing.T) {
	h, _, router := newTestServer(t)
	h.orch.Tick(context.Background())
	h.orch.Tick(context.Background())

	rec := doRequest(t, router, http.MethodGet, "/events?type=CYCLE&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []monitor.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, monitor.EventCycle, events[0].Type)
}
