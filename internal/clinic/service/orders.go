package service

import (
	"context"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/events"
	"github.com/medflow/medflow-clinic/internal/clinic/repository"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

// OrderService places and works clinical orders
type OrderService struct {
	db        *database.DB
	repos     *repository.Repositories
	journey   *JourneyService
	publisher *events.ClinicEventPublisher
	logger    *logger.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	db *database.DB,
	repos *repository.Repositories,
	journeySvc *JourneyService,
	publisher *events.ClinicEventPublisher,
	log *logger.Logger,
) *OrderService {
	return &OrderService{
		db:        db,
		repos:     repos,
		journey:   journeySvc,
		publisher: publisher,
		logger:    log.WithComponent("orders"),
	}
}

func checkOrderInput(in *domain.CreateOrderInput) error {
	if _, ok := domain.ParseOrderKind(string(in.Kind)); !ok {
		return errors.Validation(map[string]string{"kind": "must be one of: lab, imaging, medication, procedure"})
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 0 {
		return errors.Validation(map[string]string{"quantity": "must be greater than 0"})
	}
	if in.Kind == domain.OrderMedication {
		if in.InventoryItemID == "" {
			return errors.Validation(map[string]string{"inventory_item_id": "is required for medication orders"})
		}
	} else if in.ServiceID == "" {
		return errors.Validation(map[string]string{"service_id": "is required"})
	}
	return nil
}

// CreateOrder places an order on a visit that is with a doctor or admitted
// and bills it. Zero-priced orders are billed as already paid.
func (s *OrderService) CreateOrder(ctx context.Context, visitID string, in domain.CreateOrderInput) (*domain.Order, *domain.BillingItem, error) {
	a, err := requireRole(ctx, "place orders", journey.RoleDoctor)
	if err != nil {
		return nil, nil, err
	}
	if err := checkOrderInput(&in); err != nil {
		return nil, nil, err
	}

	var (
		order *domain.Order
		item  *domain.BillingItem
	)
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		v, err := s.repos.Visits.GetForUpdate(ctx, visitID)
		if err != nil {
			return err
		}
		if v.Status != journey.StatusWithDoctor && v.Status != journey.StatusAdmitted {
			return errors.Conflict("orders can only be placed while the patient is with a doctor or admitted")
		}

		o := &domain.Order{
			VisitID:       v.ID,
			Kind:          in.Kind,
			OrderedBy:     a.ID,
			Quantity:      in.Quantity,
			Status:        domain.OrderStatusOrdered,
			PaymentStatus: domain.PayStatusPending,
			Dosage:        in.Dosage,
			Notes:         in.Notes,
		}
		description, err := s.price(ctx, o, in)
		if err != nil {
			return err
		}

		b := &domain.BillingItem{
			VisitID:     v.ID,
			SourceType:  in.Kind.BillingSource(),
			Description: description,
			Quantity:    o.Quantity,
			UnitPrice:   o.UnitPrice,
			Status:      domain.PayStatusPending,
		}
		if o.Total() == 0 {
			o.PaymentStatus = domain.PayStatusPaid
			b.Status = domain.PayStatusPaid
		}

		if err := s.repos.Orders.Create(ctx, o); err != nil {
			return err
		}
		b.SourceID = o.ID
		if err := s.repos.Billing.Create(ctx, b); err != nil {
			return err
		}

		batch.OrderCreated(o, b)
		order, item = o, b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, item, nil
}

// price fills the unit price from the catalog or the pharmacy item
func (s *OrderService) price(ctx context.Context, o *domain.Order, in domain.CreateOrderInput) (string, error) {
	if in.Kind == domain.OrderMedication {
		stock, err := s.repos.Inventory.GetByID(ctx, in.InventoryItemID)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return "", errors.BadRequest("unknown inventory item")
			}
			return "", err
		}
		if !stock.IsActive {
			return "", errors.BadRequest("inventory item is inactive")
		}
		o.InventoryItemID = &stock.ID
		o.UnitPrice = stock.UnitPrice
		return stock.Name, nil
	}

	svc, err := s.repos.Services.GetByID(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", errors.BadRequest("unknown service")
		}
		return "", err
	}
	if !svc.IsActive {
		return "", errors.BadRequest("service is inactive")
	}
	if svc.Category != in.Kind.ServiceCategory() {
		return "", errors.BadRequest("service " + svc.Code + " cannot be ordered as " + string(in.Kind))
	}
	o.ServiceID = &svc.ID
	o.UnitPrice = svc.Price
	return svc.Name, nil
}

func (s *OrderService) mayWork(role journey.Role, kind domain.OrderKind, to string) bool {
	if role == journey.RoleAdmin {
		return true
	}
	// the ordering clinician may withdraw an order
	if to == domain.OrderStatusCancelled && role == journey.RoleDoctor {
		return true
	}
	for _, r := range kind.WorkRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// UpdateOrderStatus moves an order's work status. Cancelling also cancels its
// pending charge, which may release the visit from the cashier.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, kind domain.OrderKind, id string, in domain.UpdateOrderStatusInput) (*domain.Order, error) {
	a, role, err := currentActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := domain.ParseOrderKind(string(kind)); !ok {
		return nil, errors.NotFound("order")
	}
	if !s.mayWork(role, kind, in.Status) {
		return nil, errors.Forbidden("role " + a.Role + " cannot update " + string(kind) + " orders")
	}

	var order *domain.Order
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		o, err := s.repos.Orders.GetForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		if !kind.CanMoveWork(o.Status, in.Status) {
			return errors.InvalidTransition(o.Status, in.Status)
		}

		if in.Status == domain.OrderStatusCancelled {
			if err := s.releaseOrderCharge(ctx, o); err != nil {
				return err
			}
		}

		o.Status = in.Status
		if in.ResultSummary != nil {
			o.ResultSummary = in.ResultSummary
		}
		if err := s.repos.Orders.UpdateWorkStatus(ctx, o); err != nil {
			return err
		}

		if in.Status == domain.OrderStatusCancelled {
			if _, err := s.journey.AutoUpdateAfterPayment(ctx, o.VisitID, a, batch); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) releaseOrderCharge(ctx context.Context, o *domain.Order) error {
	item, err := s.repos.Billing.GetBySource(ctx, o.Kind.BillingSource(), o.ID)
	if err != nil || item == nil {
		return err
	}
	open, err := s.repos.Billing.InOpenPayment(ctx, item.ID)
	if err != nil {
		return err
	}
	if open {
		return errors.Conflict("order is part of an open payment")
	}
	return s.repos.Billing.CancelPendingBySource(ctx, o.Kind.BillingSource(), o.ID)
}

// DispenseMedication hands out a settled medication order and books the
// stock movement
func (s *OrderService) DispenseMedication(ctx context.Context, id string) (*domain.Order, *domain.StockMovement, error) {
	a, err := requireRole(ctx, "dispense medication", journey.RolePharmacist)
	if err != nil {
		return nil, nil, err
	}

	var (
		order    *domain.Order
		movement *domain.StockMovement
	)
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		o, err := s.repos.Orders.GetForUpdate(ctx, domain.OrderMedication, id)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusOrdered {
			return errors.Conflict("medication order is not awaiting dispensing")
		}
		if o.PaymentStatus != domain.PayStatusPaid && o.PaymentStatus != domain.PayStatusWaived {
			return errors.Conflict("medication order has not been paid")
		}
		if o.InventoryItemID == nil {
			return errors.Conflict("medication order has no inventory item")
		}

		stock, err := s.repos.Inventory.GetForUpdate(ctx, *o.InventoryItemID)
		if err != nil {
			return err
		}
		if stock.QuantityOnHand < o.Quantity {
			return errors.Conflict("insufficient stock").WithDetails(map[string]string{
				"item_id": stock.ID,
				"sku":     stock.SKU,
			})
		}

		refType := "medication_order"
		m := &domain.StockMovement{
			ItemID:        stock.ID,
			Delta:         -o.Quantity,
			Reason:        domain.MovementDispense,
			ReferenceType: &refType,
			ReferenceID:   &o.ID,
			PerformedBy:   a.ID,
		}
		if err := s.repos.Inventory.ApplyMovement(ctx, m); err != nil {
			return err
		}
		if err := s.repos.Orders.MarkDispensed(ctx, o, a.ID, now()); err != nil {
			return err
		}

		batch.StockDispensed(o, m)
		order, movement = o, m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if movement.QuantityAfter <= 0 {
		s.logger.Warn().Str("item_id", movement.ItemID).Msg("inventory item is out of stock")
	}
	return order, movement, nil
}

// ListOrders lists a visit's orders
func (s *OrderService) ListOrders(ctx context.Context, visitID string) ([]*domain.Order, error) {
	return s.repos.Orders.ListByVisit(ctx, visitID)
}
