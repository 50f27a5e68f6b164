package consumers

import (
	"context"

	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/messaging"
)

// AuditQueue is the durable queue feeding the audit trail
const AuditQueue = "clinic-service.audit"

// AuditEventConsumer writes every clinic event to audit_logs
type AuditEventConsumer struct {
	consumer *messaging.Consumer
	audit    *service.AuditService
	logger   *logger.Logger
}

// NewAuditEventConsumer subscribes the audit queue to the clinic exchange
func NewAuditEventConsumer(rmq *messaging.RabbitMQ, exchange string, audit *service.AuditService, log *logger.Logger) (*AuditEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, AuditQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(exchange, "#"); err != nil {
		return nil, err
	}

	c := &AuditEventConsumer{
		consumer: consumer,
		audit:    audit,
		logger:   log.WithComponent("audit-consumer"),
	}

	consumer.RegisterHandler(messaging.EventVisitStatusChanged, c.handleVisitStatusChanged)
	consumer.RegisterFallback(c.handleEvent)

	return c, nil
}

// Start starts consuming messages
func (c *AuditEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *AuditEventConsumer) handleVisitStatusChanged(ctx context.Context, event *messaging.Event) error {
	var data messaging.VisitStatusChangedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("visit_id", data.VisitID).
		Str("from", data.From).
		Str("to", data.To).
		Bool("automatic", data.Automatic).
		Msg("received visit status changed event")

	return c.handleEvent(ctx, event)
}

func (c *AuditEventConsumer) handleEvent(ctx context.Context, event *messaging.Event) error {
	if event.TenantID == "" {
		c.logger.Warn().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("event without tenant, not audited")
		return nil
	}
	return c.audit.Record(ctx, event)
}
