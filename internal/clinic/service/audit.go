package service

import (
	"context"
	"encoding/json"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/repository"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/messaging"
)

// AuditService turns clinic events into audit trail entries
type AuditService struct {
	repo   *repository.AuditRepository
	logger *logger.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo *repository.AuditRepository, log *logger.Logger) *AuditService {
	return &AuditService{repo: repo, logger: log.WithComponent("audit")}
}

// resourceOf names the record an event is about
func resourceOf(event *messaging.Event) (string, string) {
	var ids struct {
		VisitID       string `json:"visit_id"`
		PaymentID     string `json:"payment_id"`
		OrderID       string `json:"order_id"`
		ItemID        string `json:"item_id"`
		BillingItemID string `json:"billing_item_id"`
	}
	_ = json.Unmarshal(event.Data, &ids)

	switch event.Type {
	case messaging.EventPaymentCompleted:
		return "payment", ids.PaymentID
	case messaging.EventOrderCreated, messaging.EventStockDispensed:
		return "order", ids.OrderID
	case messaging.EventStockAdjusted:
		return "inventory_item", ids.ItemID
	case messaging.EventBillingItemWaived:
		return "billing_item", ids.BillingItemID
	default:
		return "visit", ids.VisitID
	}
}

// Record persists one event. Redeliveries of an already recorded event are
// ignored.
func (s *AuditService) Record(ctx context.Context, event *messaging.Event) error {
	resourceType, resourceID := resourceOf(event)
	details := event.Data
	if len(details) == 0 || !json.Valid(details) {
		details = json.RawMessage("{}")
	}

	entry := &domain.AuditLog{
		EventID:      strPtr(event.ID),
		ActorID:      strPtr(event.ActorID),
		ActorRole:    strPtr(event.ActorRole),
		Action:       event.Type,
		ResourceType: resourceType,
		ResourceID:   strPtr(resourceID),
		Details:      details,
	}

	inserted, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Debug().Str("event_id", event.ID).Msg("audit entry already recorded")
	}
	return nil
}

// List lists audit entries, newest first
func (s *AuditService) List(ctx context.Context, resourceType, resourceID string, page, perPage int) ([]*domain.AuditLog, int64, error) {
	return s.repo.List(ctx, resourceType, resourceID, page, perPage)
}
