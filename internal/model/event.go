// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"

	"bnc-service/pkg/plugin"
)

// EventType represents the type of event
type EventType string

const (
	EventDataReady         EventType = "DATA_READY"
	EventBusy              EventType = "BUSY"
	EventParameterChanged  EventType = "PARAMETER_CHANGED"
	EventPositionChanged   EventType = "POSITION_CHANGED"
	EventPluginInitialized EventType = "PLUGIN_INITIALIZED"
	EventPluginClosed      EventType = "PLUGIN_CLOSED"
	EventPluginError       EventType = "PLUGIN_ERROR"
)

// EventTypes lists every event type a client can subscribe to
var EventTypes = []EventType{
	EventDataReady,
	EventBusy,
	EventParameterChanged,
	EventPositionChanged,
	EventPluginInitialized,
	EventPluginClosed,
	EventPluginError,
}

// PluginEvent represents an event in the system
type PluginEvent struct {
	ID        uuid.UUID   `json:"id"`
	EventType EventType   `json:"event_type"`
	Kind      plugin.Kind `json:"kind"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity"` // INFO, WARNING, ERROR
}

// NewPluginEvent stamps a new event
func NewPluginEvent(eventType EventType, kind plugin.Kind, data interface{}) PluginEvent {
	severity := "INFO"
	if eventType == EventPluginError {
		severity = "ERROR"
	}
	return PluginEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Kind:      kind,
		Data:      data,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}

// EventData structures for different event types

// BusyEventData reports whether an exchange with the instrument is in flight
type BusyEventData struct {
	Busy bool `json:"busy"`
}

// ParameterChangedEventData represents an applied setting and its side effects
type ParameterChangedEventData struct {
	Name    string               `json:"name"`
	Value   interface{}          `json:"value"`
	Updates []plugin.ParamUpdate `json:"updates,omitempty"`
}

// PositionEventData represents a settled mover position
type PositionEventData struct {
	Axis  string  `json:"axis"`
	Unit  string  `json:"unit"`
	Value float64 `json:"value"`
}

// PluginInitializedEventData represents a successful plugin initialization
type PluginInitializedEventData struct {
	Info string `json:"info"`
}

// PluginErrorEventData represents a failed plugin call
type PluginErrorEventData struct {
	Operation    string    `json:"operation"`
	ErrorMessage string    `json:"error_message"`
	ErrorTime    time.Time `json:"error_time"`
}
