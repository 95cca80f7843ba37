package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bnc-service/internal/config"
)

func TestScanInstruments(t *testing.T) {
	var ports []int
	probe := func(ctx context.Context, host string, port int) (string, error) {
		ports = append(ports, port)
		if host == "10.1.2.3" {
			return "BNC,575-4,31183,2.4.1", nil
		}
		return "", errors.New("refused")
	}

	cfg := &config.DiscoveryConfig{NetworkRange: "10.1.2.3", Port: 2001, Concurrency: 1}
	h := NewDiscoveryHandler(cfg, probe, zap.NewNop())

	r := gin.New()
	r.GET("/api/v1/discovery/scan", h.ScanInstruments)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("configured range", func(t *testing.T) {
		w := get("/api/v1/discovery/scan")
		require.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.EqualValues(t, 1, data["devices_found"])
		devices := data["devices"].([]interface{})
		require.Len(t, devices, 1)
		assert.Equal(t, "575-4", devices[0].(map[string]interface{})["model"])
	})

	t.Run("port override", func(t *testing.T) {
		ports = nil
		w := get("/api/v1/discovery/scan?range=10.1.2.0/30&port=23")
		require.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.EqualValues(t, 0, data["devices_found"])
		assert.Equal(t, []int{23, 23}, ports)
	})

	t.Run("bad requests", func(t *testing.T) {
		for _, path := range []string{
			"/api/v1/discovery/scan?port=70000",
			"/api/v1/discovery/scan?range=10.0.0.0/8",
			"/api/v1/discovery/scan?range=nowhere",
		} {
			w := get(path)
			assert.Equal(t, http.StatusBadRequest, w.Code, path)
		}
	})
}
