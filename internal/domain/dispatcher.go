package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"rollout.io/rollout/internal/pkg/logger"
)

// EventHandler reacts to a committed flag event.
type EventHandler func(ctx context.Context, event *FlagEvent) error

// EventDispatcher fans flag events out to registered handlers.
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register adds a handler for each of the given event types.
func (d *EventDispatcher) Register(handler EventHandler, types ...EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range types {
		d.handlers[t] = append(d.handlers[t], handler)
	}
}

// Dispatch calls every handler for the event in registration order. A failing
// handler does not stop the others; the first error is returned.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *FlagEvent) error {
	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("no handlers for flag event",
			zap.String("event_type", string(event.EventType)),
			zap.String("flag_key", event.FlagKey),
		)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("flag event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.String("flag_key", event.FlagKey),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType, err)
			}
		}
	}
	return firstErr
}
