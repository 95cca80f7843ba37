// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bnc-service/internal/discovery"
	"bnc-service/internal/driver/bnc575"
	internalPlugin "bnc-service/internal/plugin"
	"bnc-service/internal/protocol"
	"bnc-service/internal/service"
	"bnc-service/internal/utils"
)

// errorClass maps a sentinel to an HTTP status and, optionally, a specific error code
type errorClass struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins.
var errorClasses = []errorClass{
	{service.ErrPluginNotFound, http.StatusNotFound, ""},
	{internalPlugin.ErrUnknownKind, http.StatusNotFound, ""},
	{internalPlugin.ErrUnknownParameter, http.StatusNotFound, ""},
	{service.ErrNotMover, http.StatusConflict, ""},
	{internalPlugin.ErrNotInitialized, http.StatusConflict, ""},
	{bnc575.ErrTTLMode, http.StatusConflict, "TTL_MODE"},
	{internalPlugin.ErrInvalidParameterValue, http.StatusUnprocessableEntity, ""},
	{bnc575.ErrInvalidValue, http.StatusUnprocessableEntity, ""},
	{bnc575.ErrInvalidChannel, http.StatusUnprocessableEntity, ""},
	{discovery.ErrRangeTooLarge, http.StatusBadRequest, "RANGE_TOO_LARGE"},
	{discovery.ErrInvalidRange, http.StatusBadRequest, "INVALID_RANGE"},
	{service.ErrNoInstrument, http.StatusServiceUnavailable, "NO_INSTRUMENT"},
	{service.ErrShuttingDown, http.StatusServiceUnavailable, "SHUTTING_DOWN"},
	{protocol.ErrAckTimeout, http.StatusGatewayTimeout, ""},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, ""},
	{protocol.ErrNotConnected, http.StatusBadGateway, ""},
	{protocol.ErrReconnectExhausted, http.StatusBadGateway, "RECONNECT_EXHAUSTED"},
	{protocol.ErrLineTooLong, http.StatusBadGateway, ""},
	{bnc575.ErrUnexpectedReply, http.StatusBadGateway, ""},
	{bnc575.ErrCommandRejected, http.StatusBadGateway, "COMMAND_REJECTED"},
}

// classify maps service, plugin and instrument errors to a status and error code
func classify(err error) (int, string) {
	for _, class := range errorClasses {
		if errors.Is(err, class.target) {
			return class.status, class.code
		}
	}
	return http.StatusInternalServerError, ""
}

func statusFor(err error) int {
	status, _ := classify(err)
	return status
}

// failure writes err with its mapped status and code
func failure(c *gin.Context, message string, err error) {
	status, code := classify(err)
	utils.ErrorResponseWithCode(c, status, code, message, err)
}
