package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"bnc-service/internal/config"
	"bnc-service/internal/middleware"
	internalPlugin "bnc-service/internal/plugin"
	"bnc-service/internal/protocol"
	"bnc-service/internal/protocol/protocoltest"
	"bnc-service/internal/repository"
	"bnc-service/internal/service"
	"bnc-service/internal/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type testServer struct {
	engine  *gin.Engine
	console *protocoltest.FakeConsole
	service *service.PluginService
	bus     *EventBus
	ws      *WebSocketHandler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{
		Device: config.DeviceConfig{Host: "192.168.178.146", Port: 2001, AckTimeout: time.Second},
		Plugin: config.PluginConfig{DefaultChannel: "A", DefaultSlot: 1, Epsilon: 0.25},
		App:    config.AppConfig{Name: "bnc-service", Version: "test"},
	}

	console := protocoltest.NewFakeConsole(protocoltest.InstrumentValues())
	connect := func(ctx context.Context, _ *protocol.TelnetConfig, listener protocol.Listener) (protocol.LineProtocol, error) {
		console.SetListener(listener)
		return console, console.Open(ctx)
	}

	registry := internalPlugin.NewRegistry(logger)
	internalPlugin.RegisterDefaultPlugins(registry, logger)

	bus := NewEventBus(logger)
	journal := service.NewExchangeService(repository.NewExchangeRepository(100, logger), 0, logger)
	svc := service.NewPluginService(registry, cfg, connect, bus, journal, logger)
	t.Cleanup(svc.Shutdown)

	ts := &testServer{
		console: console,
		service: svc,
		bus:     bus,
		ws:      NewWebSocketHandler(bus, nil, logger),
	}

	plugins := NewPluginHandler(svc, logger)
	device := NewDeviceHandler(svc, logger)
	health := NewHealthHandler(svc, cfg, logger)
	exchanges := NewExchangeHandler(journal, logger)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.GET("/health", health.HealthCheck)
	r.GET("/ready", health.ReadinessCheck)
	r.GET("/live", health.LivenessCheck)
	r.GET("/ws/data", ts.ws.HandleDataConnection)

	api := r.Group("/api/v1")
	api.GET("/plugins", plugins.ListPlugins)
	api.POST("/plugins/move/move-abs", plugins.MoveAbs)
	api.POST("/plugins/move/move-rel", plugins.MoveRel)
	api.POST("/plugins/move/home", plugins.MoveHome)
	api.POST("/plugins/move/stop", plugins.Stop)
	api.GET("/plugins/move/position", plugins.GetPosition)
	api.POST("/plugins/:kind/init", plugins.InitializePlugin)
	api.GET("/plugins/:kind/settings", plugins.GetSettings)
	api.PUT("/plugins/:kind/parameters/:name", plugins.SetParameter)
	api.POST("/plugins/:kind/poll", plugins.Poll)
	api.DELETE("/plugins/:kind", plugins.ClosePlugin)
	api.GET("/device/idn", device.GetIDN)
	api.GET("/device/snapshot", device.GetSnapshot)
	api.GET("/device/health", device.GetDeviceHealth)
	api.GET("/device/attributes", device.ListAttributes)
	api.GET("/device/attributes/:name", device.GetAttribute)
	api.GET("/device/exchanges", exchanges.ListExchanges)
	api.GET("/device/exchanges/stats", exchanges.GetExchangeStats)
	api.GET("/device/exchanges/:id", exchanges.GetExchange)
	api.DELETE("/device/exchanges", exchanges.ClearExchanges)

	ts.engine = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) (utils.APIResponse, map[string]interface{}) {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]interface{})
	return resp, data
}

func TestPluginLifecycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/plugins/viewer/init", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp, data := decode(t, w)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, true, data["initialized"])
	assert.Contains(t, data["info"], "BNC,575-4")

	w = ts.do(t, http.MethodGet, "/api/v1/plugins/viewer/settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPut, "/api/v1/plugins/viewer/parameters/delay", gin.H{"value": 1e-6})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, data = decode(t, w)
	assert.Len(t, data["updates"], 2)
	assert.Equal(t, "0.000001000", ts.console.Value(":PULSE1:DELAY"))

	w = ts.do(t, http.MethodPost, "/api/v1/plugins/viewer/poll", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/plugins", nil)
	_, _ = decode(t, w)
	assert.Contains(t, w.Body.String(), `"kind":"viewer"`)

	w = ts.do(t, http.MethodDelete, "/api/v1/plugins/viewer", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/v1/plugins/viewer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetParameterErrors(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/plugins/viewer/init", nil).Code)
	ts.console.Reset()

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"out of range", "/api/v1/plugins/viewer/parameters/period", gin.H{"value": -1}, http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY"},
		{"unknown setting", "/api/v1/plugins/viewer/parameters/bogus", gin.H{"value": 1}, http.StatusNotFound, "NOT_FOUND"},
		{"missing value", "/api/v1/plugins/viewer/parameters/delay", gin.H{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"plugin not initialized", "/api/v1/plugins/move/parameters/delay", gin.H{"value": 1}, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp, _ := decode(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	assert.Empty(t, ts.console.Writes())
}

func TestInitializeErrors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/plugins/spectrometer/init", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts.console.Fail("*IDN?", protocol.ErrAckTimeout)
	w = ts.do(t, http.MethodPost, "/api/v1/plugins/viewer/init", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, "INSTRUMENT_TIMEOUT", resp.Error.Code)
}

func TestMoverRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/plugins/move/move-abs", gin.H{"value": 250})
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/plugins/move/init", nil).Code)

	w = ts.do(t, http.MethodPost, "/api/v1/plugins/move/move-abs", gin.H{"value": 250})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.InDelta(t, 250.0, data["value"], 1e-6)
	assert.Equal(t, "ns", data["unit"])
	assert.Equal(t, "Delay (Channel A)", data["axis"])

	w = ts.do(t, http.MethodPost, "/api/v1/plugins/move/move-rel", gin.H{"value": 50})
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.InDelta(t, 300.0, data["value"], 1e-6)

	w = ts.do(t, http.MethodPost, "/api/v1/plugins/move/move-abs", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/plugins/move/move-abs", gin.H{"value": -5})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/plugins/move/position", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.InDelta(t, 300.0, data["value"], 1e-6)
}

func TestDeviceRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/device/idn", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/plugins/viewer/init", nil).Code)

	w = ts.do(t, http.MethodGet, "/api/v1/device/idn", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, "BNC,575-4,31183,2.4.1", data["idn"])

	w = ts.do(t, http.MethodGet, "/api/v1/device/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"connection"`)

	w = ts.do(t, http.MethodGet, "/api/v1/device/snapshot?format=yaml", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/yaml")
	assert.Contains(t, w.Body.String(), "name: connection")

	w = ts.do(t, http.MethodGet, "/api/v1/device/snapshot?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/device/attributes/delay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.InDelta(t, 100e-9, data["value"], 1e-12)
	assert.Equal(t, false, data["readonly"])

	w = ts.do(t, http.MethodGet, "/api/v1/device/attributes/bogus", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/device/attributes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"idn","description":"identification string","readonly":true`)

	w = ts.do(t, http.MethodGet, "/api/v1/device/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.Equal(t, "192.168.178.146:2001", data["address"])
	assert.Equal(t, true, data["open"])
}

func TestHealthRoutes(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/live", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/ready", nil).Code)

	w := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "idle", health.Checks["instrument"].Status)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/plugins/move/init", nil).Code)

	w = ts.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "BNC,575-4")

	ts.console.Fail("*IDN?", protocol.ErrAckTimeout)
	w = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/ready", nil).Code)
}

func TestExchangeJournalRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/plugins/viewer/init", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/device/exchanges?command=*IDN&per_page=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	exchanges := data["exchanges"].([]interface{})
	require.NotEmpty(t, exchanges)
	first := exchanges[0].(map[string]interface{})
	assert.Equal(t, "*IDN?", first["command"])
	assert.Equal(t, "BNC,575-4,31183,2.4.1", first["reply"])
	assert.Equal(t, "viewer", first["kind"])

	w = ts.do(t, http.MethodGet, "/api/v1/device/exchanges/"+first["id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/device/exchanges/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.EqualValues(t, 100, data["capacity"])
	assert.NotZero(t, data["total"])

	w = ts.do(t, http.MethodGet, "/api/v1/device/exchanges?status=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/device/exchanges/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/device/exchanges/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/v1/device/exchanges", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/device/exchanges", nil)
	_, data = decode(t, w)
	assert.Empty(t, data["exchanges"])
}
