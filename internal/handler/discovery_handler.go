// internal/handler/discovery_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bnc-service/internal/config"
	"bnc-service/internal/discovery"
	"bnc-service/internal/utils"
)

// DiscoveryHandler handles console scan requests
type DiscoveryHandler struct {
	config *config.DiscoveryConfig
	probe  discovery.Probe
	logger *utils.ServiceLogger
	zap    *zap.Logger
}

// NewDiscoveryHandler creates a new discovery handler. A nil probe dials the telnet console.
func NewDiscoveryHandler(cfg *config.DiscoveryConfig, probe discovery.Probe, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		config: cfg,
		probe:  probe,
		logger: utils.NewServiceLogger(logger, "discovery-handler"),
		zap:    logger,
	}
}

// scannerConfig overlays the configured values on the scanner defaults
func (h *DiscoveryHandler) scannerConfig(port int) *discovery.Config {
	cfg := discovery.DefaultConfig()
	if h.config != nil {
		if h.config.Port > 0 {
			cfg.Port = h.config.Port
		}
		if h.config.Concurrency > 0 {
			cfg.Concurrency = h.config.Concurrency
		}
		if h.config.ConnTimeout > 0 {
			cfg.ConnTimeout = h.config.ConnTimeout
		}
		if h.config.AckTimeout > 0 {
			cfg.AckTimeout = h.config.AckTimeout
		}
		if h.config.MaxHosts > 0 {
			cfg.MaxHosts = h.config.MaxHosts
		}
	}
	if port > 0 {
		cfg.Port = port
	}
	return cfg
}

// ScanInstruments probes a network range for pulse generator consoles
// @Summary Scan for pulse generators
// @Description Probe every host of an IPv4 range on the console port with *IDN? and list the BNC-575 units that answer
// @Tags Discovery
// @Produce json
// @Param range query string false "IPv4 address or CIDR range (defaults to discovery.network_range)"
// @Param port query int false "Console port (defaults to discovery.port)"
// @Success 200 {object} utils.APIResponse{data=object{devices_found=int,devices=[]discovery.Instrument}} "Scan completed"
// @Failure 400 {object} utils.APIResponse "Invalid range or port"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/scan [get]
func (h *DiscoveryHandler) ScanInstruments(c *gin.Context) {
	cidr := c.Query("range")
	if cidr == "" && h.config != nil {
		cidr = h.config.NetworkRange
	}
	if cidr == "" {
		utils.ValidationErrorResponse(c, map[string]string{"range": "required"})
		return
	}

	port := 0
	if raw := c.Query("port"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 || p > 65535 {
			utils.ValidationErrorResponse(c, map[string]string{"port": "must be between 1 and 65535"})
			return
		}
		port = p
	}

	scanner := discovery.NewScanner(h.zap, h.scannerConfig(port), h.probe)
	devices, err := scanner.Scan(c.Request.Context(), cidr)
	if err != nil {
		h.logger.Error("Console scan failed", zap.String("range", cidr), zap.Error(err))
		failure(c, "Failed to scan network range", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Console scan completed", gin.H{
		"devices_found": len(devices),
		"devices":       devices,
	})
}
