package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"bnc-service/internal/discovery"
	"bnc-service/internal/driver/bnc575"
	internalPlugin "bnc-service/internal/plugin"
	"bnc-service/internal/protocol"
	"bnc-service/internal/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{service.ErrPluginNotFound, http.StatusNotFound},
		{internalPlugin.ErrUnknownKind, http.StatusNotFound},
		{internalPlugin.ErrUnknownParameter, http.StatusNotFound},
		{service.ErrNotMover, http.StatusConflict},
		{bnc575.ErrTTLMode, http.StatusConflict},
		{bnc575.ErrInvalidValue, http.StatusUnprocessableEntity},
		{bnc575.ErrInvalidChannel, http.StatusUnprocessableEntity},
		{internalPlugin.ErrInvalidParameterValue, http.StatusUnprocessableEntity},
		{service.ErrNoInstrument, http.StatusServiceUnavailable},
		{service.ErrShuttingDown, http.StatusServiceUnavailable},
		{protocol.ErrAckTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{protocol.ErrReconnectExhausted, http.StatusBadGateway},
		{bnc575.ErrCommandRejected, http.StatusBadGateway},
		{bnc575.ErrUnexpectedReply, http.StatusBadGateway},
		{discovery.ErrRangeTooLarge, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
			assert.Equal(t, tt.status, statusFor(fmt.Errorf("set delay: %w", tt.err)), "wrapped")
		})
	}
}

func TestClassifyCodes(t *testing.T) {
	_, code := classify(fmt.Errorf("amplitude: %w", bnc575.ErrTTLMode))
	assert.Equal(t, "TTL_MODE", code)

	_, code = classify(fmt.Errorf("%w: :PULSE1:WIDT 1 replied ?3", bnc575.ErrCommandRejected))
	assert.Equal(t, "COMMAND_REJECTED", code)

	status, code := classify(protocol.ErrAckTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Empty(t, code, "falls back to the status code")
}
