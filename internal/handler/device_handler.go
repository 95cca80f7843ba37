// internal/handler/device_handler.go
package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"bnc-service/internal/driver/bnc575"
	"bnc-service/internal/service"
	"bnc-service/internal/utils"
)

// DeviceHandler handles direct instrument queries through an initialized plugin's connection
type DeviceHandler struct {
	pluginService *service.PluginService
	logger        *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(pluginService *service.PluginService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		pluginService: pluginService,
		logger:        utils.NewServiceLogger(logger, "device-handler"),
	}
}

// AttributeInfo describes one named instrument setting
type AttributeInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	ReadOnly    bool        `json:"readonly"`
	Value       interface{} `json:"value,omitempty"`
}

// DeviceHealth reports exchange statistics of the instrument connection
type DeviceHealth struct {
	Address string               `json:"address"`
	Channel string               `json:"channel"`
	Slot    int                  `json:"slot"`
	Open    bool                 `json:"open"`
	Health  bnc575.HealthMetrics `json:"health"`
}

// GetIDN reads the identification string
// @Summary Instrument identification
// @Description Send *IDN? on the connection of an initialized plugin
// @Tags Device
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{idn=string}} "Identification retrieved"
// @Failure 503 {object} utils.APIResponse "No plugin initialized"
// @Failure 504 {object} utils.APIResponse "Instrument timeout"
// @Router /device/idn [get]
func (h *DeviceHandler) GetIDN(c *gin.Context) {
	g, err := h.pluginService.Generator()
	if err != nil {
		failure(c, "No instrument connection", err)
		return
	}

	idn, err := g.IDN(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read IDN", zap.Error(err))
		failure(c, "Failed to read identification", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Identification retrieved", gin.H{"idn": idn})
}

// GetSnapshot reads every attribute group
// @Summary Instrument snapshot
// @Description Read the full attribute tree of the active channel, as JSON or YAML
// @Tags Device
// @Produce json
// @Produce application/yaml
// @Param format query string false "Output format" Enums(json, yaml) default(json)
// @Success 200 {object} utils.APIResponse{data=[]plugin.Param} "Snapshot retrieved"
// @Failure 400 {object} utils.APIResponse "Unknown format"
// @Failure 503 {object} utils.APIResponse "No plugin initialized"
// @Router /device/snapshot [get]
func (h *DeviceHandler) GetSnapshot(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "yaml" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown format", fmt.Errorf("format %q is not json or yaml", format))
		return
	}

	g, err := h.pluginService.Generator()
	if err != nil {
		failure(c, "No instrument connection", err)
		return
	}

	snapshot, err := g.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read snapshot", zap.Error(err))
		failure(c, "Failed to read snapshot", err)
		return
	}

	if format == "yaml" {
		out, err := yaml.Marshal(snapshot)
		if err != nil {
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to encode snapshot", err)
			return
		}
		c.Data(http.StatusOK, "application/yaml; charset=utf-8", out)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Snapshot retrieved", snapshot)
}

// GetAttribute reads one named attribute
// @Summary Read an attribute
// @Tags Device
// @Produce json
// @Param name path string true "Attribute name"
// @Success 200 {object} utils.APIResponse{data=AttributeInfo} "Attribute retrieved"
// @Failure 404 {object} utils.APIResponse "Unknown attribute"
// @Failure 503 {object} utils.APIResponse "No plugin initialized"
// @Router /device/attributes/{name} [get]
func (h *DeviceHandler) GetAttribute(c *gin.Context) {
	name := c.Param("name")
	attr, ok := bnc575.LookupAttribute(name)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Unknown attribute", fmt.Errorf("attribute %q", name))
		return
	}

	g, err := h.pluginService.Generator()
	if err != nil {
		failure(c, "No instrument connection", err)
		return
	}

	value, err := g.Get(c.Request.Context(), name)
	if err != nil {
		failure(c, "Failed to read attribute", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Attribute retrieved", AttributeInfo{
		Name:        attr.Name,
		Description: attr.Description,
		ReadOnly:    attr.ReadOnly(),
		Value:       value,
	})
}

// ListAttributes lists the attribute table
// @Summary List attributes
// @Tags Device
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]AttributeInfo} "Attributes retrieved"
// @Router /device/attributes [get]
func (h *DeviceHandler) ListAttributes(c *gin.Context) {
	names := bnc575.AttributeNames()
	out := make([]AttributeInfo, 0, len(names))
	for _, name := range names {
		attr, _ := bnc575.LookupAttribute(name)
		out = append(out, AttributeInfo{Name: attr.Name, Description: attr.Description, ReadOnly: attr.ReadOnly()})
	}
	utils.SuccessResponse(c, http.StatusOK, "Attributes retrieved", out)
}

// GetDeviceHealth reports exchange statistics
// @Summary Instrument connection health
// @Tags Device
// @Produce json
// @Success 200 {object} utils.APIResponse{data=DeviceHealth} "Health retrieved"
// @Failure 503 {object} utils.APIResponse "No plugin initialized"
// @Router /device/health [get]
func (h *DeviceHandler) GetDeviceHealth(c *gin.Context) {
	g, err := h.pluginService.Generator()
	if err != nil {
		failure(c, "No instrument connection", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Health retrieved", DeviceHealth{
		Address: fmt.Sprintf("%s:%d", g.Host(), g.Port()),
		Channel: string(g.Channel()),
		Slot:    g.Slot(),
		Open:    g.Protocol().IsOpen(),
		Health:  g.Health(),
	})
}
