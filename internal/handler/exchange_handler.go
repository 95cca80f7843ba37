// internal/handler/exchange_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bnc-service/internal/model"
	"bnc-service/internal/repository"
	"bnc-service/internal/service"
	"bnc-service/internal/utils"
	"bnc-service/pkg/plugin"
)

// ExchangeHandler serves the console journal
type ExchangeHandler struct {
	exchangeService *service.ExchangeService
	logger          *utils.ServiceLogger
}

// NewExchangeHandler creates a new exchange handler
func NewExchangeHandler(exchangeService *service.ExchangeService, logger *zap.Logger) *ExchangeHandler {
	return &ExchangeHandler{
		exchangeService: exchangeService,
		logger:          utils.NewServiceLogger(logger, "exchange-handler"),
	}
}

// ListExchanges lists journaled console exchanges
// @Summary List console exchanges
// @Description Get journaled command and reply lines, newest first, with filtering and pagination
// @Tags Device
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(50)
// @Param kind query string false "Filter by plugin kind" Enums(viewer, move)
// @Param status query string false "Filter by reply status" Enums(OK, REJECTED)
// @Param command query string false "Filter by command prefix"
// @Param start_date query string false "Start date filter (RFC3339)"
// @Param end_date query string false "End date filter (RFC3339)"
// @Success 200 {object} utils.APIResponse{data=object{exchanges=[]model.Exchange,pagination=service.PaginationResult}} "Exchanges retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /device/exchanges [get]
func (h *ExchangeHandler) ListExchanges(c *gin.Context) {
	filter := &repository.ExchangeFilter{
		Page:    1,
		PerPage: 50,
		Command: c.Query("command"),
	}
	invalid := map[string]string{}

	// Parse pagination
	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			filter.Page = p
		} else {
			invalid["page"] = "must be a positive integer"
		}
	}
	if perPage := c.Query("per_page"); perPage != "" {
		if pp, err := strconv.Atoi(perPage); err == nil && pp > 0 && pp <= 500 {
			filter.PerPage = pp
		} else {
			invalid["per_page"] = "must be between 1 and 500"
		}
	}

	// Parse filters
	if kind := c.Query("kind"); kind != "" {
		k := plugin.Kind(kind)
		filter.Kind = &k
	}
	if status := c.Query("status"); status != "" {
		s := model.ExchangeStatus(status)
		if s != model.ExchangeStatusOK && s != model.ExchangeStatusRejected {
			invalid["status"] = "must be OK or REJECTED"
		}
		filter.Status = &s
	}
	if startDate := c.Query("start_date"); startDate != "" {
		if date, err := time.Parse(time.RFC3339, startDate); err == nil {
			filter.StartDate = &date
		} else {
			invalid["start_date"] = "must be RFC3339"
		}
	}
	if endDate := c.Query("end_date"); endDate != "" {
		if date, err := time.Parse(time.RFC3339, endDate); err == nil {
			filter.EndDate = &date
		} else {
			invalid["end_date"] = "must be RFC3339"
		}
	}

	if len(invalid) > 0 {
		utils.ValidationErrorResponse(c, invalid)
		return
	}

	exchanges, pagination, err := h.exchangeService.ListExchanges(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list exchanges", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list exchanges", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Exchanges retrieved", gin.H{
		"exchanges":  exchanges,
		"pagination": pagination,
	})
}

// GetExchange returns one journaled exchange
// @Summary Get console exchange
// @Tags Device
// @Produce json
// @Param id path string true "Exchange ID"
// @Success 200 {object} utils.APIResponse{data=model.Exchange} "Exchange retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid exchange ID"
// @Failure 404 {object} utils.APIResponse "Exchange not found"
// @Router /device/exchanges/{id} [get]
func (h *ExchangeHandler) GetExchange(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid exchange ID", err)
		return
	}

	exchange, err := h.exchangeService.GetExchange(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrExchangeNotFound) {
			status = http.StatusNotFound
		}
		utils.ErrorResponse(c, status, "Exchange not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Exchange retrieved", exchange)
}

// GetExchangeStats summarizes the journal
// @Summary Console journal statistics
// @Tags Device
// @Produce json
// @Success 200 {object} utils.APIResponse{data=repository.ExchangeStats} "Statistics retrieved"
// @Router /device/exchanges/stats [get]
func (h *ExchangeHandler) GetExchangeStats(c *gin.Context) {
	stats, err := h.exchangeService.Stats(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to read journal statistics", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Statistics retrieved", stats)
}

// ClearExchanges empties the journal
// @Summary Clear console journal
// @Tags Device
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{deleted=int}} "Journal cleared"
// @Router /device/exchanges [delete]
func (h *ExchangeHandler) ClearExchanges(c *gin.Context) {
	deleted, err := h.exchangeService.Clear(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to clear journal", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Journal cleared", gin.H{"deleted": deleted})
}
