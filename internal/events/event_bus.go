package events

import (
	"sync"
	"time"

	"github.com/davido182/depositdigest/pkg/logger"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventSecurity       EventType = "security.event"
	EventAudit          EventType = "audit.entry"
	EventAlertCreated   EventType = "alert.created"
	EventAlertResolved  EventType = "alert.resolved"
	EventAlertEscalated EventType = "alert.escalated"
	EventHealthChecked  EventType = "health.checked"
)

// Event represents a monitoring event fanned out to subscribers and storage
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"` // e.g., "audit_logger", "alert_manager"
	SubjectID string                 `json:"subject_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Severity  string                 `json:"severity,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

// Publisher is the write side of the bus, used by the monitoring components
type Publisher interface {
	Publish(event Event)
}

// EventStorage defines the interface for storing events
type EventStorage interface {
	Store(event Event) error
	Query(filters EventFilters) ([]Event, error)
}

// EventFilters for querying events
type EventFilters struct {
	Types     []EventType
	UserID    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// EventBus manages event publishing and subscription
type EventBus struct {
	subscribers map[EventType][]EventHandler
	wildcard    []EventHandler
	mu          sync.RWMutex
	storage     EventStorage
	log         *logger.FieldLogger
}

// NewEventBus creates a new event bus; storage may be nil
func NewEventBus(storage EventStorage) *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]EventHandler),
		storage:     storage,
		log:         logger.ForComponent("event_bus"),
	}
}

// SetStorage replaces the event storage backend
func (eb *EventBus) SetStorage(storage EventStorage) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.storage = storage
}

// Subscribe registers a handler for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], handler)
	eb.log.Debug("Event handler subscribed", map[string]interface{}{
		"event_type": eventType,
	})
}

// SubscribeAll registers a handler for every event type
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.wildcard = append(eb.wildcard, handler)
}

// Publish stores the event and notifies subscribers asynchronously
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	eb.mu.RLock()
	storage := eb.storage
	handlers := make([]EventHandler, 0, len(eb.subscribers[event.Type])+len(eb.wildcard))
	handlers = append(handlers, eb.subscribers[event.Type]...)
	handlers = append(handlers, eb.wildcard...)
	eb.mu.RUnlock()

	if storage != nil {
		if err := storage.Store(event); err != nil {
			eb.log.Error("Failed to store event", err, map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
			})
		}
	}

	for _, handler := range handlers {
		go func(h EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.log.Error("Event handler panicked", nil, map[string]interface{}{
						"event_type": event.Type,
						"panic":      r,
					})
				}
			}()
			h(event)
		}(handler)
	}

	eb.log.Debug("Event published", map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"source":     event.Source,
	})
}

// Query retrieves events based on filters
func (eb *EventBus) Query(filters EventFilters) ([]Event, error) {
	eb.mu.RLock()
	storage := eb.storage
	eb.mu.RUnlock()

	if storage == nil {
		return nil, nil
	}
	return storage.Query(filters)
}
