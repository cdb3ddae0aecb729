// Package eventbus publishes purchaser domain events to a message broker,
// with an in-process bus for local mode.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/felixgeelhaar/entitle/internal/shared/domain"
)

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	// Publish sends a message to the event bus.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}

// PublishDomainEvent marshals a domain event and publishes it under its
// routing key.
func PublishDomainEvent(ctx context.Context, publisher Publisher, event domain.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return publisher.Publish(ctx, event.RoutingKey(), payload)
}

// NoopPublisher discards events. Used when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that drops everything.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs and discards the event.
func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("event discarded (no broker configured)", "routing_key", routingKey)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error { return nil }
