package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler consumes a published event payload.
type Handler func(ctx context.Context, payload []byte)

// InProcessBus is an in-memory event bus for local mode (no RabbitMQ).
// Events are delivered synchronously to registered handlers.
type InProcessBus struct {
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
}

// NewInProcessBus creates a new in-process event bus.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{
		logger:   logger,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a routing key.
func (b *InProcessBus) Subscribe(routingKey string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[routingKey] = append(b.handlers[routingKey], handler)
}

// Publish dispatches the payload to every handler registered for the key.
// Handler failures are the handler's own problem: dispatch never fails.
func (b *InProcessBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers[routingKey]))
	copy(handlers, b.handlers[routingKey])
	b.mu.Unlock()

	start := time.Now()
	for _, handler := range handlers {
		handler(ctx, payload)
	}

	b.logger.Debug("event dispatched",
		"routing_key", routingKey,
		"handlers", len(handlers),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close is a no-op for the in-process bus.
func (b *InProcessBus) Close() error { return nil }
