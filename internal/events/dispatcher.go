package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription. Close blocks
// until in-flight handlers have drained.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
	Close()
}

// asyncDispatcher runs handlers on their own goroutine with a bounded
// context, detached from the publisher. A failing or slow handler degrades
// only its own side effect; the transition that triggered the event has
// already committed and is never rolled back.
type asyncDispatcher struct {
	mu             sync.RWMutex
	listeners      map[EventType][]EventHandler
	logger         *zap.Logger
	handlerTimeout time.Duration
	wg             sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher instance.
func NewAsyncDispatcher(logger *zap.Logger, handlerTimeout time.Duration) Dispatcher {
	if handlerTimeout <= 0 {
		handlerTimeout = 10 * time.Second
	}
	return &asyncDispatcher{
		listeners:      make(map[EventType][]EventHandler),
		logger:         logger,
		handlerTimeout: handlerTimeout,
	}
}

// Publish schedules handlers for the given event and returns immediately.
func (d *asyncDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler := handler
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			handlerCtx, cancel := context.WithTimeout(context.Background(), d.handlerTimeout)
			defer cancel()
			if err := handler(handlerCtx, event); err != nil {
				d.logger.Warn("event handler failed",
					zap.String("event_type", string(event.Type)),
					zap.String("ticket_id", event.TicketID),
					zap.Error(err))
			}
		}()
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *asyncDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Close waits for every scheduled handler to finish. Called at shutdown so
// the process never exits with a half-run pipeline.
func (d *asyncDispatcher) Close() {
	d.wg.Wait()
}

// NewInMemoryDispatcher creates a synchronous dispatcher. Tests use it to
// observe pipeline effects deterministically.
func NewInMemoryDispatcher() Dispatcher {
	return &syncDispatcher{listeners: make(map[EventType][]EventHandler)}
}

type syncDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func (d *syncDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		// best-effort: keep going despite handler errors
		_ = handler(ctx, event)
	}
	return nil
}

func (d *syncDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Close is a no-op: synchronous handlers finish inside Publish.
func (d *syncDispatcher) Close() {}
