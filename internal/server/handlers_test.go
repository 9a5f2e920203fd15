package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-lot/internal/history"
	"parking-lot/internal/parking"
)

const testSecret = "test-secret"

type testEnv struct {
	handler http.Handler
	manager *parking.Manager
}

func newTestEnv(t *testing.T, capacity, waiting int, recorder parking.HistoryRecorder) *testEnv {
	t.Helper()

	telemetry := parking.NewLocalTelemetryProvider(nil, nil)
	t.Cleanup(func() {
		_ = telemetry.Shutdown(context.Background())
	})

	settings := parking.Settings{
		Capacity:        capacity,
		WaitingCapacity: waiting,
		BillingMode:     parking.PerMinute,
		Rates:           parking.Rates{PerMinute: 1, PerHour: 30, Fixed: 50},
		Optimizer:       parking.DefaultOptimizerSettings(),
	}
	manager, err := parking.NewManager(settings, telemetry, recorder)
	require.NoError(t, err)

	srv := NewServer(Options{Port: 0, ServiceName: "parking-test", JWTSecret: testSecret}, manager)
	return &testEnv{handler: srv.Handler(), manager: manager}
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: "operator",
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp Response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func dataMap(t *testing.T, resp Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, 2, 2, nil)

	rec, _ := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"parking-test"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestEnterOutcomes(t *testing.T) {
	env := newTestEnv(t, 1, 1, nil)
	path := "/api/parking-lot/enter"

	rec, resp := env.do(t, http.MethodPost, path, VehicleRequest{VehicleID: "A"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "PARKED", dataMap(t, resp)["outcome"])
	assert.Equal(t, "N1", dataMap(t, resp)["position"])

	rec, resp = env.do(t, http.MethodPost, path, VehicleRequest{VehicleID: "B"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IN_SIDE_ROAD", dataMap(t, resp)["outcome"])

	rec, resp = env.do(t, http.MethodPost, path, VehicleRequest{VehicleID: "A"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "EXISTS", dataMap(t, resp)["outcome"])

	rec, resp = env.do(t, http.MethodPost, path, VehicleRequest{VehicleID: "C"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "REJECTED", dataMap(t, resp)["outcome"])

	rec, _ = env.do(t, http.MethodPost, path, VehicleRequest{VehicleID: "  "}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnterInvalidBody(t *testing.T) {
	env := newTestEnv(t, 1, 1, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/parking-lot/enter", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaveBackfillsAndRecordsHistory(t *testing.T) {
	store, err := history.OpenFile(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	env := newTestEnv(t, 2, 2, store)

	for _, id := range []string{"A", "B", "C"} {
		rec, _ := env.do(t, http.MethodPost, "/api/parking-lot/enter", VehicleRequest{VehicleID: id}, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := env.do(t, http.MethodPost, "/api/parking-lot/leave", VehicleRequest{VehicleID: "A"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "SUCCESS", data["outcome"])
	assert.Equal(t, "N1", data["position"])
	entered, ok := data["entered"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NQ1", entered["from_position"])
	assert.Contains(t, entered, "waited_seconds")
	assert.NotContains(t, entered, "waited")

	rec, resp = env.do(t, http.MethodGet, "/api/parking-lot/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries, ok := dataMap(t, resp)["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].(map[string]any)["car_id"])

	rec, _ = env.do(t, http.MethodPost, "/api/parking-lot/leave", VehicleRequest{VehicleID: "ghost"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/parking-lot/history?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryWithoutStore(t *testing.T) {
	env := newTestEnv(t, 2, 2, nil)

	rec, _ := env.do(t, http.MethodGet, "/api/parking-lot/history", nil, "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestFindAndExit(t *testing.T) {
	env := newTestEnv(t, 1, 1, nil)
	env.do(t, http.MethodPost, "/api/parking-lot/enter", VehicleRequest{VehicleID: "A"}, "")
	env.do(t, http.MethodPost, "/api/parking-lot/enter", VehicleRequest{VehicleID: "B"}, "")

	rec, resp := env.do(t, http.MethodGet, "/api/parking-lot/find/B", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, dataMap(t, resp)["in_lot"])
	assert.Equal(t, "NQ1", dataMap(t, resp)["position"])

	rec, resp = env.do(t, http.MethodGet, "/api/parking-lot/exit/A", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "north", dataMap(t, resp)["exit_side"])

	rec, _ = env.do(t, http.MethodGet, "/api/parking-lot/exit/B", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/parking-lot/find/Z", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndMoves(t *testing.T) {
	env := newTestEnv(t, 4, 2, nil)
	env.do(t, http.MethodPost, "/api/parking-lot/enter", VehicleRequest{VehicleID: "A"}, "")

	rec, resp := env.do(t, http.MethodGet, "/api/parking-lot/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(1), data["occupied"])
	assert.Equal(t, float64(4), data["capacity"])
	assert.NotEmpty(t, resp.Meta.RequestID)

	rec, _ = env.do(t, http.MethodGet, "/api/parking-lot/moves", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	env := newTestEnv(t, 2, 2, nil)
	body := CreateLotRequest{Capacity: 6, WaitingCapacity: 2}

	rec, _ := env.do(t, http.MethodPost, "/api/parking-lot/", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/parking-lot/", body, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/parking-lot/", body, adminToken(t, "user"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/api/parking-lot/", body, adminToken(t, "admin"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(6), dataMap(t, resp)["capacity"])
	assert.Equal(t, float64(4), dataMap(t, resp)["waiting_capacity"], "waiting_capacity is per lane")
	assert.Equal(t, 6, env.manager.Status(context.Background()).Capacity)

	rec, _ = env.do(t, http.MethodPost, "/api/parking-lot/", CreateLotRequest{Capacity: 0}, adminToken(t, "admin"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebalanceRateLimited(t *testing.T) {
	env := newTestEnv(t, 4, 0, nil)
	token := adminToken(t, "admin")

	rec, resp := env.do(t, http.MethodPost, "/api/parking-lot/rebalance", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, dataMap(t, resp)["rebalanced"])

	rec, _ = env.do(t, http.MethodPost, "/api/parking-lot/rebalance", nil, token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSetBilling(t *testing.T) {
	env := newTestEnv(t, 2, 2, nil)
	token := adminToken(t, "admin")

	rec, resp := env.do(t, http.MethodPut, "/api/parking-lot/billing", BillingRequest{Mode: "fixed", Amount: 15}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fixed", dataMap(t, resp)["mode"])

	mode, rates := env.manager.Billing()
	assert.Equal(t, parking.Fixed, mode)
	assert.Equal(t, 15.0, rates.Fixed)

	rec, _ = env.do(t, http.MethodPut, "/api/parking-lot/billing", BillingRequest{Mode: "weekly", Amount: 1}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/parking-lot/billing", BillingRequest{Mode: "per_hour", Amount: -3}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 3, 1, nil)
	env.do(t, http.MethodPost, "/api/parking-lot/enter", VehicleRequest{VehicleID: "A"}, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "parking_capacity 3")
	assert.Contains(t, rec.Body.String(), `parking_occupied{side="north"} 1`)
}
