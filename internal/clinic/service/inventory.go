package service

import (
	"context"
	"strings"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/events"
	"github.com/medflow/medflow-clinic/internal/clinic/repository"
	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/tenant"
)

// InventoryService manages pharmacy stock
type InventoryService struct {
	db        *database.DB
	repos     *repository.Repositories
	publisher *events.ClinicEventPublisher
	logger    *logger.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	db *database.DB,
	repos *repository.Repositories,
	publisher *events.ClinicEventPublisher,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		db:        db,
		repos:     repos,
		publisher: publisher,
		logger:    log.WithComponent("inventory"),
	}
}

// CreateItem adds a stocked item. Opening stock is booked as a receipt so
// the ledger always sums to quantity_on_hand.
func (s *InventoryService) CreateItem(ctx context.Context, in domain.CreateInventoryItemInput) (*domain.InventoryItem, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	facilityID := in.FacilityID
	if facilityID == "" {
		facilityID = tenant.FacilityID(ctx)
	}
	if facilityID == "" {
		return nil, errors.BadRequest("facility_id is required")
	}

	item := &domain.InventoryItem{
		FacilityID:   facilityID,
		SKU:          strings.ToUpper(strings.TrimSpace(in.SKU)),
		Name:         strings.TrimSpace(in.Name),
		Unit:         in.Unit,
		UnitPrice:    in.UnitPrice,
		ReorderLevel: in.ReorderLevel,
	}

	err := inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		if _, err := s.repos.Facilities.GetByID(ctx, facilityID); err != nil {
			return err
		}
		if err := s.repos.Inventory.Create(ctx, item); err != nil {
			return err
		}
		if in.QuantityOnHand == 0 {
			return nil
		}

		m := &domain.StockMovement{
			ItemID:      item.ID,
			Delta:       in.QuantityOnHand,
			Reason:      domain.MovementReceipt,
			PerformedBy: a.ID,
		}
		if err := s.repos.Inventory.ApplyMovement(ctx, m); err != nil {
			return err
		}
		item.QuantityOnHand = m.QuantityAfter
		batch.StockAdjusted(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems lists a facility's stock
func (s *InventoryService) ListItems(ctx context.Context, facilityID string, lowStock bool, page, perPage int) ([]*domain.InventoryItem, int64, error) {
	if facilityID == "" {
		facilityID = tenant.FacilityID(ctx)
	}
	return s.repos.Inventory.List(ctx, facilityID, lowStock, page, perPage)
}

func checkAdjustment(in domain.AdjustStockInput) error {
	switch {
	case in.Delta == 0:
		return errors.Validation(map[string]string{"delta": "must not be zero"})
	case (in.Reason == domain.MovementReceipt || in.Reason == domain.MovementReturn) && in.Delta < 0:
		return errors.Validation(map[string]string{"delta": "must be positive for " + in.Reason})
	case in.Reason == domain.MovementExpiry && in.Delta > 0:
		return errors.Validation(map[string]string{"delta": "must be negative for expiry"})
	case in.Reason == domain.MovementDispense:
		return errors.Validation(map[string]string{"reason": "dispensing goes through medication orders"})
	}
	switch in.Reason {
	case domain.MovementReceipt, domain.MovementReturn, domain.MovementExpiry, domain.MovementAdjustment:
		return nil
	}
	return errors.Validation(map[string]string{"reason": "must be one of: receipt, adjustment, expiry, return"})
}

// AdjustStock books a manual stock movement
func (s *InventoryService) AdjustStock(ctx context.Context, itemID string, in domain.AdjustStockInput) (*domain.StockMovement, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if err := checkAdjustment(in); err != nil {
		return nil, err
	}

	var movement *domain.StockMovement
	err := inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		item, err := s.repos.Inventory.GetForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item.QuantityOnHand+in.Delta < 0 {
			return errors.Conflict("insufficient stock")
		}

		m := &domain.StockMovement{
			ItemID:      item.ID,
			Delta:       in.Delta,
			Reason:      in.Reason,
			PerformedBy: a.ID,
			Notes:       in.Notes,
		}
		if err := s.repos.Inventory.ApplyMovement(ctx, m); err != nil {
			return err
		}
		batch.StockAdjusted(m)
		movement = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// ListMovements lists an item's newest ledger lines
func (s *InventoryService) ListMovements(ctx context.Context, itemID string, limit int) ([]*domain.StockMovement, error) {
	if _, err := s.repos.Inventory.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repos.Inventory.ListMovements(ctx, itemID, limit)
}
