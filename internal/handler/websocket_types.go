// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bnc-service/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mutex         sync.RWMutex
	subscriptions map[model.EventType]bool
}

// Subscribe adds event types to the client filter
func (c *Client) Subscribe(types ...model.EventType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, t := range types {
		c.subscriptions[t] = true
	}
}

// Unsubscribe removes event types from the client filter
func (c *Client) Unsubscribe(types ...model.EventType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, t := range types {
		delete(c.subscriptions, t)
	}
}

// Wants reports whether the client is subscribed to eventType
func (c *Client) Wants(eventType model.EventType) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.subscriptions[eventType]
}

// Subscriptions returns the subscribed event types in canonical order
func (c *Client) Subscriptions() []model.EventType {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	out := make([]model.EventType, 0, len(c.subscriptions))
	for _, t := range model.EventTypes {
		if c.subscriptions[t] {
			out = append(out, t)
		}
	}
	return out
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// SubscriptionRequest is the payload of subscribe and unsubscribe messages
type SubscriptionRequest struct {
	Topics []model.EventType `json:"topics"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister unregisters a client
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	delete(cm.clients, client.ID)
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		ByTopic:          make(map[model.EventType]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		for _, t := range client.Subscriptions() {
			stats.ByTopic[t]++
		}
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int                     `json:"total_connections"`
	ByTopic          map[model.EventType]int `json:"by_topic"`
	Clients          []*Client               `json:"clients"`
}
