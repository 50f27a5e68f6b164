// Package events publishes clinic domain events. Operations collect events
// in a Batch while their transaction is open and flush it after commit, so
// nothing is announced for work that was rolled back.
package events

import (
	"context"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/messaging"
)

// Source is the event source name
const Source = "clinic-service"

// ClinicEventPublisher publishes clinic events
type ClinicEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewClinicEventPublisher creates a publisher on the clinic exchange
func NewClinicEventPublisher(rmq *messaging.RabbitMQ, exchange string, log *logger.Logger) (*ClinicEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, exchange, Source, log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing EventPublisher
func NewWithPublisher(p messaging.EventPublisher, log *logger.Logger) *ClinicEventPublisher {
	return &ClinicEventPublisher{
		publisher: p,
		logger:    log.WithComponent("events"),
	}
}

// Flush publishes every event in b. Failures are logged, never returned:
// the state change they describe is already committed.
func (p *ClinicEventPublisher) Flush(ctx context.Context, b *Batch) {
	if p == nil || b == nil {
		return
	}
	for _, e := range b.events {
		if err := p.publisher.Publish(ctx, e.eventType, e.data); err != nil {
			p.logger.Error().Err(err).Str("event_type", e.eventType).Msg("failed to publish clinic event")
		}
	}
	b.events = nil
}

type pending struct {
	eventType string
	data      interface{}
}

// Batch collects events raised inside one transaction
type Batch struct {
	events []pending
}

// Len returns the number of collected events
func (b *Batch) Len() int {
	return len(b.events)
}

// Types returns the collected event types in order
func (b *Batch) Types() []string {
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.eventType
	}
	return out
}

func (b *Batch) add(eventType string, data interface{}) {
	b.events = append(b.events, pending{eventType: eventType, data: data})
}

// VisitRegistered records a registration
func (b *Batch) VisitRegistered(v *domain.Visit, reused bool, warnings []string) {
	b.add(messaging.EventVisitRegistered, messaging.VisitRegisteredEvent{
		VisitID:       v.ID,
		VisitNumber:   v.VisitNumber,
		PatientID:     v.PatientID,
		FacilityID:    v.FacilityID,
		Status:        string(v.Status),
		PaymentMode:   v.PaymentMode,
		PatientReused: reused,
		Warnings:      warnings,
	})
}

// VisitStatusChanged records a journey transition
func (b *Batch) VisitStatusChanged(v *domain.Visit, from journey.Status, automatic bool, notes string) {
	b.add(messaging.EventVisitStatusChanged, messaging.VisitStatusChangedEvent{
		VisitID:       v.ID,
		FacilityID:    v.FacilityID,
		From:          string(from),
		To:            string(v.Status),
		RoutingStatus: string(v.RoutingStatus),
		Automatic:     automatic,
		Notes:         notes,
	})
}

// PaymentCompleted records a fully settled payment
func (b *Batch) PaymentCompleted(p *domain.Payment, currency string) {
	methods := make(map[string]int64)
	for _, a := range p.Allocations {
		methods[a.Method] += a.Amount
	}
	b.add(messaging.EventPaymentCompleted, messaging.PaymentCompletedEvent{
		PaymentID:   p.ID,
		VisitID:     p.VisitID,
		TotalAmount: p.TotalAmount,
		Currency:    currency,
		Methods:     methods,
		CashierID:   p.CashierID,
	})
}

// OrderCreated records a new clinical order and its billing item
func (b *Batch) OrderCreated(o *domain.Order, item *domain.BillingItem) {
	b.add(messaging.EventOrderCreated, messaging.OrderCreatedEvent{
		OrderID:       o.ID,
		Kind:          string(o.Kind),
		VisitID:       o.VisitID,
		BillingItemID: item.ID,
		Quantity:      o.Quantity,
		Amount:        item.TotalAmount,
	})
}

// StockDispensed records a dispensed medication order
func (b *Batch) StockDispensed(o *domain.Order, m *domain.StockMovement) {
	b.add(messaging.EventStockDispensed, messaging.StockDispensedEvent{
		OrderID:     o.ID,
		VisitID:     o.VisitID,
		ItemID:      m.ItemID,
		Quantity:    -m.Delta,
		NewQuantity: m.QuantityAfter,
	})
}

// StockAdjusted records a manual stock movement
func (b *Batch) StockAdjusted(m *domain.StockMovement) {
	b.add(messaging.EventStockAdjusted, messaging.StockAdjustedEvent{
		ItemID:      m.ItemID,
		Delta:       m.Delta,
		NewQuantity: m.QuantityAfter,
		Reason:      m.Reason,
	})
}

// BillingItemWaived records a waiver
func (b *Batch) BillingItemWaived(item *domain.BillingItem) {
	reason := ""
	if item.WaivedReason != nil {
		reason = *item.WaivedReason
	}
	b.add(messaging.EventBillingItemWaived, messaging.BillingItemWaivedEvent{
		BillingItemID: item.ID,
		VisitID:       item.VisitID,
		Amount:        item.TotalAmount,
		Reason:        reason,
	})
}
