package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"eventsync/internal/domain/events"

	"go.uber.org/zap"
)

// Dispatcher routes decoded envelopes to the handler registered for their
// event type. One handler per type; types without a handler are no-ops.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[events.EventType]events.Handler
	log      *zap.SugaredLogger
}

func NewDispatcher(log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[events.EventType]events.Handler),
		log:      log,
	}
}

// Register adds handler for eventType. Registering a type twice is an error.
func (d *Dispatcher) Register(eventType events.EventType, handler events.Handler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s", eventType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[eventType]; exists {
		return fmt.Errorf("handler for %s already registered", eventType)
	}
	d.handlers[eventType] = handler
	return nil
}

// MustRegister is Register for service wiring, where a duplicate is a bug.
func (d *Dispatcher) MustRegister(eventType events.EventType, handler events.Handler) {
	if err := d.Register(eventType, handler); err != nil {
		panic(err)
	}
}

// Dispatch invokes the handler for env.EventType.
func (d *Dispatcher) Dispatch(ctx context.Context, env events.Envelope) error {
	d.mu.RLock()
	handler, ok := d.handlers[env.EventType]
	d.mu.RUnlock()

	if !ok {
		d.log.Debugw("no handler registered, ignoring event",
			"event_type", env.EventType,
			"event_id", env.EventID,
			"key", env.Key,
		)
		return nil
	}
	return handler(ctx, env)
}

func (d *Dispatcher) Handles(eventType events.EventType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[eventType]
	return ok
}

// EventTypes lists the registered types in sorted order.
func (d *Dispatcher) EventTypes() []events.EventType {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]events.EventType, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
