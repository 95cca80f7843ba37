// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bnc-service/internal/model"
)

// EventBus manages event distribution
type EventBus struct {
	subscribers map[string]*subscription
	events      chan model.PluginEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	types map[model.EventType]bool
	ch    chan model.PluginEvent
}

// wants reports whether the subscription takes events of eventType. No types means all.
func (s *subscription) wants(eventType model.EventType) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string]*subscription),
		events:      make(chan model.PluginEvent, 1000),
		logger:      logger,
	}
}

// Run distributes published events until ctx is done, then closes every subscriber
func (eb *EventBus) Run(ctx context.Context) {
	defer eb.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish publishes an event
func (eb *EventBus) Publish(event model.PluginEvent) {
	select {
	case eb.events <- event:
	default:
		// Event bus is full
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe subscribes to events of the given types, or to all events when none are given
func (eb *EventBus) Subscribe(types ...model.EventType) (string, <-chan model.PluginEvent) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	sub := &subscription{
		types: make(map[model.EventType]bool, len(types)),
		ch:    make(chan model.PluginEvent, 100),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	id := uuid.NewString()
	eb.subscribers[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel
func (eb *EventBus) Unsubscribe(id string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if sub, ok := eb.subscribers[id]; ok {
		delete(eb.subscribers, id)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of live subscriptions
func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.PluginEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for id, sub := range eb.subscribers {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is slow, skip
			eb.logger.Debug("Subscriber full, skipping event",
				zap.String("subscriber", id),
				zap.String("event_type", string(event.EventType)),
			)
		}
	}
}

func (eb *EventBus) closeAll() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for id, sub := range eb.subscribers {
		delete(eb.subscribers, id)
		close(sub.ch)
	}
}
