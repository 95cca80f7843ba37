// internal/handler/health_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bnc-service/internal/config"
	"bnc-service/internal/service"
	"bnc-service/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	pluginService *service.PluginService
	config        *config.Config
	logger        *utils.ServiceLogger
	startedAt     time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pluginService *service.PluginService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		pluginService: pluginService,
		config:        config,
		logger:        utils.NewServiceLogger(logger, "health-handler"),
		startedAt:     time.Now(),
	}
}

// probe asks the instrument for its identification within one ack timeout
func (h *HealthHandler) probe(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Device.AckTimeout)
	defer cancel()
	return h.pluginService.Ready(ctx)
}

// HealthCheck performs general health check
// @Summary Health check
// @Description Get overall service health including the instrument connection
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy"
// @Failure 503 {object} HealthResponse "Service is unhealthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).String(),
		Checks:    make(map[string]CheckResult),
	}

	idn, err := h.probe(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrNoInstrument):
		// Nothing initialized yet
		health.Checks["instrument"] = CheckResult{
			Status:  "idle",
			Message: err.Error(),
		}
	case err != nil:
		health.Status = "unhealthy"
		health.Checks["instrument"] = CheckResult{
			Status:  "unhealthy",
			Message: err.Error(),
		}
	default:
		health.Checks["instrument"] = CheckResult{
			Status:  "healthy",
			Message: idn,
		}
	}

	plugins := h.pluginService.Status()
	pluginData := make(map[string]interface{}, len(plugins))
	for _, p := range plugins {
		pluginData[string(p.Kind)] = p
	}
	health.Checks["plugins"] = CheckResult{
		Status: "healthy",
		Data:   pluginData,
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		h.logger.Warn("Health check failed", zap.Error(err))
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck reports whether an instrument connection is open and answering
// @Summary Readiness check
// @Description Ready when an initialized plugin holds an open connection that answers *IDN?
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} object{status=string,idn=string,timestamp=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	idn, err := h.probe(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"idn":       idn,
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
// @Summary Liveness check
// @Description Check if service is alive
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
