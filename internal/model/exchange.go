// internal/model/exchange.go
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"bnc-service/pkg/plugin"
)

// ExchangeStatus classifies the reply of one console exchange
type ExchangeStatus string

const (
	ExchangeStatusOK       ExchangeStatus = "OK"
	ExchangeStatusRejected ExchangeStatus = "REJECTED" // ?n error reply
)

// Exchange is one command line and the reply line it produced
type Exchange struct {
	ID        uuid.UUID      `json:"id"`
	Kind      plugin.Kind    `json:"kind"`
	Command   string         `json:"command"`
	Reply     string         `json:"reply"`
	Status    ExchangeStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewExchange stamps a new exchange and classifies its reply
func NewExchange(kind plugin.Kind, command, reply string) *Exchange {
	status := ExchangeStatusOK
	if strings.HasPrefix(reply, "?") {
		status = ExchangeStatusRejected
	}
	return &Exchange{
		ID:        uuid.New(),
		Kind:      kind,
		Command:   command,
		Reply:     reply,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// IsQuery checks if the command asked for a value
func (e *Exchange) IsQuery() bool {
	return strings.HasSuffix(e.Command, "?")
}
