// internal/handler/plugin_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bnc-service/internal/service"
	"bnc-service/internal/utils"
	"bnc-service/pkg/plugin"
)

// PluginHandler exposes the plugin contract to a remote acquisition host
type PluginHandler struct {
	pluginService *service.PluginService
	logger        *utils.ServiceLogger
}

// NewPluginHandler creates a new plugin handler
func NewPluginHandler(pluginService *service.PluginService, logger *zap.Logger) *PluginHandler {
	return &PluginHandler{
		pluginService: pluginService,
		logger:        utils.NewServiceLogger(logger, "plugin-handler"),
	}
}

// ParameterRequest carries the new value of one setting
type ParameterRequest struct {
	Value interface{} `json:"value"`
}

// ParameterResponse lists the settings changed as a side effect
type ParameterResponse struct {
	Name    string               `json:"name"`
	Value   interface{}          `json:"value"`
	Updates []plugin.ParamUpdate `json:"updates"`
}

// MoveRequest carries a target position or a relative step in axis units
type MoveRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// InitializePlugin initializes a plugin
// @Summary Initialize a plugin
// @Description Connect a viewer or mover plugin to the pulse generator. A plugin of the same kind is closed first.
// @Tags Plugins
// @Produce json
// @Param kind path string true "Plugin kind" Enums(viewer, move)
// @Success 200 {object} utils.APIResponse{data=service.InitResult} "Plugin initialized"
// @Failure 404 {object} utils.APIResponse "Unknown plugin kind"
// @Failure 502 {object} utils.APIResponse "Instrument unreachable"
// @Failure 504 {object} utils.APIResponse "Instrument timeout"
// @Router /plugins/{kind}/init [post]
func (h *PluginHandler) InitializePlugin(c *gin.Context) {
	kind := plugin.Kind(c.Param("kind"))

	result, err := h.pluginService.Initialize(c.Request.Context(), kind)
	if err != nil {
		status, code := classify(err)
		if result != nil && status == http.StatusInternalServerError {
			// Connection failures
			status = http.StatusBadGateway
		}
		utils.LoggerWithRequestID(h.logger.Logger, utils.GetRequestID(c)).Error("Failed to initialize plugin",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		utils.ErrorResponseWithCode(c, status, code, "Failed to initialize plugin", err)
		return
	}

	h.logger.Info("Plugin initialized", zap.String("kind", string(kind)), zap.String("info", result.Info))
	utils.SuccessResponse(c, http.StatusOK, "Plugin initialized", result)
}

// GetSettings returns the parameter tree
// @Summary Get plugin settings
// @Tags Plugins
// @Produce json
// @Param kind path string true "Plugin kind" Enums(viewer, move)
// @Success 200 {object} utils.APIResponse{data=[]plugin.Param} "Settings retrieved"
// @Failure 404 {object} utils.APIResponse "Plugin not initialized"
// @Router /plugins/{kind}/settings [get]
func (h *PluginHandler) GetSettings(c *gin.Context) {
	settings, err := h.pluginService.Settings(plugin.Kind(c.Param("kind")))
	if err != nil {
		failure(c, "Failed to get settings", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Settings retrieved", settings)
}

// SetParameter applies one setting
// @Summary Change a plugin setting
// @Description Forward an edited setting to the instrument. The response lists other settings that changed as a consequence.
// @Tags Plugins
// @Accept json
// @Produce json
// @Param kind path string true "Plugin kind" Enums(viewer, move)
// @Param name path string true "Setting name"
// @Param request body ParameterRequest true "New value"
// @Success 200 {object} utils.APIResponse{data=ParameterResponse} "Setting applied"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 404 {object} utils.APIResponse "Unknown plugin or setting"
// @Failure 409 {object} utils.APIResponse "Setting not applicable in the current mode"
// @Failure 422 {object} utils.APIResponse "Value out of range"
// @Failure 502 {object} utils.APIResponse "Instrument error"
// @Failure 504 {object} utils.APIResponse "Instrument timeout"
// @Router /plugins/{kind}/parameters/{name} [put]
func (h *PluginHandler) SetParameter(c *gin.Context) {
	kind := plugin.Kind(c.Param("kind"))
	name := c.Param("name")

	var req ParameterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Value == nil {
		utils.ValidationErrorResponse(c, map[string]string{"value": "value is required"})
		return
	}

	updates, err := h.pluginService.SetParameter(c.Request.Context(), kind, name, req.Value)
	if err != nil {
		utils.LoggerWithRequestID(h.logger.Logger, utils.GetRequestID(c)).Warn("Failed to apply setting",
			zap.String("kind", string(kind)),
			zap.String("name", name),
			zap.Error(err),
		)
		failure(c, "Failed to apply setting", err)
		return
	}

	if updates == nil {
		updates = []plugin.ParamUpdate{}
	}
	utils.SuccessResponse(c, http.StatusOK, "Setting applied", ParameterResponse{
		Name:    name,
		Value:   req.Value,
		Updates: updates,
	})
}

// Poll acquires once
// @Summary Acquire once
// @Description Trigger one acquisition. Data is delivered on the /ws/data stream.
// @Tags Plugins
// @Produce json
// @Param kind path string true "Plugin kind" Enums(viewer, move)
// @Success 202 {object} utils.APIResponse "Acquisition done"
// @Failure 404 {object} utils.APIResponse "Plugin not initialized"
// @Failure 502 {object} utils.APIResponse "Instrument error"
// @Router /plugins/{kind}/poll [post]
func (h *PluginHandler) Poll(c *gin.Context) {
	if err := h.pluginService.Poll(c.Request.Context(), plugin.Kind(c.Param("kind"))); err != nil {
		failure(c, "Acquisition failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Acquisition done", nil)
}

// ClosePlugin closes a plugin
// @Summary Close a plugin
// @Tags Plugins
// @Produce json
// @Param kind path string true "Plugin kind" Enums(viewer, move)
// @Success 200 {object} utils.APIResponse "Plugin closed"
// @Failure 404 {object} utils.APIResponse "Plugin not initialized"
// @Router /plugins/{kind} [delete]
func (h *PluginHandler) ClosePlugin(c *gin.Context) {
	kind := plugin.Kind(c.Param("kind"))
	if err := h.pluginService.Close(kind); err != nil {
		if errors.Is(err, service.ErrPluginNotFound) {
			failure(c, "Plugin not initialized", err)
			return
		}
		// The plugin is gone even when closing the console failed
		h.logger.Warn("Plugin closed with error", zap.String("kind", string(kind)), zap.Error(err))
	}
	utils.SuccessResponse(c, http.StatusOK, "Plugin closed", gin.H{"kind": kind})
}

// ListPlugins lists initialized plugins
// @Summary List initialized plugins
// @Tags Plugins
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]service.PluginStatus} "Plugins retrieved"
// @Router /plugins [get]
func (h *PluginHandler) ListPlugins(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Plugins retrieved", h.pluginService.Status())
}

// MoveAbs moves to an absolute position
// @Summary Move to an absolute delay
// @Tags Mover
// @Accept json
// @Produce json
// @Param request body MoveRequest true "Target delay in ns"
// @Success 200 {object} utils.APIResponse{data=model.PositionEventData} "Move done"
// @Failure 404 {object} utils.APIResponse "Mover not initialized"
// @Failure 422 {object} utils.APIResponse "Target out of range"
// @Router /plugins/move/move-abs [post]
func (h *PluginHandler) MoveAbs(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	position, err := h.pluginService.MoveAbs(c.Request.Context(), *req.Value)
	if err != nil {
		failure(c, "Move failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Move done", position)
}

// MoveRel moves by a relative step
// @Summary Move by a relative delay step
// @Tags Mover
// @Accept json
// @Produce json
// @Param request body MoveRequest true "Step in ns"
// @Success 200 {object} utils.APIResponse{data=model.PositionEventData} "Move done"
// @Failure 404 {object} utils.APIResponse "Mover not initialized"
// @Failure 422 {object} utils.APIResponse "Target out of range"
// @Router /plugins/move/move-rel [post]
func (h *PluginHandler) MoveRel(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	position, err := h.pluginService.MoveRel(c.Request.Context(), *req.Value)
	if err != nil {
		failure(c, "Move failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Move done", position)
}

// MoveHome moves to the reference position
// @Summary Move home
// @Tags Mover
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.PositionEventData} "Move done"
// @Failure 404 {object} utils.APIResponse "Mover not initialized"
// @Router /plugins/move/home [post]
func (h *PluginHandler) MoveHome(c *gin.Context) {
	position, err := h.pluginService.MoveHome(c.Request.Context())
	if err != nil {
		failure(c, "Move failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Move done", position)
}

// Stop stops the instrument output
// @Summary Stop motion
// @Tags Mover
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.PositionEventData} "Stopped"
// @Failure 404 {object} utils.APIResponse "Mover not initialized"
// @Router /plugins/move/stop [post]
func (h *PluginHandler) Stop(c *gin.Context) {
	position, err := h.pluginService.Stop(c.Request.Context())
	if err != nil {
		failure(c, "Stop failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Stopped", position)
}

// GetPosition reads the current position
// @Summary Current mover position
// @Tags Mover
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.PositionEventData} "Position retrieved"
// @Failure 404 {object} utils.APIResponse "Mover not initialized"
// @Router /plugins/move/position [get]
func (h *PluginHandler) GetPosition(c *gin.Context) {
	position, err := h.pluginService.Position(c.Request.Context())
	if err != nil {
		failure(c, "Failed to read position", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Position retrieved", position)
}
