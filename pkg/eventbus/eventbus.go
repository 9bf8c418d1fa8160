package eventbus

import (
	"sync"

	"github.com/agoramesh/agora-backend/internal/economy/events"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

// EventHandler is a function that handles an event
type EventHandler func(event events.Event)

// EventBus manages event subscriptions and publications. It satisfies
// events.Publisher and is wired in as the engine's outbound sink at process
// startup.
type EventBus struct {
	handlers map[events.EventType][]EventHandler
	logger   logging.Logger
	mu       sync.RWMutex
}

var _ events.Publisher = (*EventBus)(nil)

// New creates a new EventBus
func New(logger logging.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[events.EventType][]EventHandler),
		logger:   logger.With("component", "eventbus"),
	}
}

// Subscribe registers a handler for a specific event type
func (eb *EventBus) Subscribe(eventType events.EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Debug("Subscribed to event type", "type", eventType)
}

// Publish sends an event to all subscribed handlers. Handlers run on their
// own goroutines; a panicking handler never takes down the publisher.
func (eb *EventBus) Publish(event events.Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	handlers, exists := eb.handlers[event.Type]
	if !exists {
		return
	}
	for _, handler := range handlers {
		go func(h EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("Recovered from panic in event handler", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}
