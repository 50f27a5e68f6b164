package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/tenant"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher publishes domain events. The tenant and actor are taken
// from ctx.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Publisher handles publishing events to RabbitMQ
type Publisher struct {
	rmq      *RabbitMQ
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher creates a new publisher for the given exchange
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		rmq:      rmq,
		exchange: exchange,
		source:   source,
		logger:   log.WithComponent("publisher"),
	}, nil
}

// Publish publishes an event to the exchange using its type as routing key
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	event, err := BuildEvent(ctx, eventType, p.source, data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return p.PublishWithRoutingKey(ctx, eventType, event)
}

// PublishWithRoutingKey publishes a prepared event with a custom routing key
func (p *Publisher) PublishWithRoutingKey(ctx context.Context, routingKey string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.rmq.Channel().PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID,
			CorrelationId: event.CorrelationID,
			Timestamp:     event.Timestamp,
			Type:          event.Type,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("routing_key", routingKey).
		Str("event_id", event.ID).
		Str("tenant_id", event.TenantID).
		Str("correlation_id", event.CorrelationID).
		Msg("event published")

	return nil
}

// BuildEvent creates an event stamped with the tenant, actor and
// correlation ID found on ctx.
func BuildEvent(ctx context.Context, eventType, source string, data interface{}) (*Event, error) {
	event, err := NewEvent(eventType, source, getCorrelationID(ctx), data)
	if err != nil {
		return nil, err
	}

	event.TenantID, _ = tenant.TenantID(ctx)
	if a := actor.FromContext(ctx); a != nil {
		event.ActorID = a.ID
		event.ActorRole = a.Role
	}
	return event, nil
}

// NopPublisher drops every event. Used when RabbitMQ is not configured.
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// getCorrelationID retrieves the correlation ID from context
func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
