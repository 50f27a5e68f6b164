package service

import (
	"context"
	"fmt"
	"math"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/events"
	"github.com/medflow/medflow-clinic/internal/clinic/repository"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/config"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/permissions"
	"github.com/medflow/medflow-clinic/pkg/tenant"
)

// BillingService collects payments and waives charges
type BillingService struct {
	db        *database.DB
	repos     *repository.Repositories
	journey   *JourneyService
	publisher *events.ClinicEventPublisher
	cfg       config.ClinicConfig
	logger    *logger.Logger
}

// NewBillingService creates a new billing service
func NewBillingService(
	db *database.DB,
	repos *repository.Repositories,
	journeySvc *JourneyService,
	publisher *events.ClinicEventPublisher,
	cfg config.ClinicConfig,
	log *logger.Logger,
) *BillingService {
	return &BillingService{
		db:        db,
		repos:     repos,
		journey:   journeySvc,
		publisher: publisher,
		cfg:       cfg,
		logger:    log.WithComponent("billing"),
	}
}

// ListBillingItems lists a visit's charges
func (s *BillingService) ListBillingItems(ctx context.Context, visitID string) ([]*domain.BillingItem, error) {
	if _, err := s.repos.Visits.GetByID(ctx, visitID); err != nil {
		return nil, err
	}
	return s.repos.Billing.ListByVisit(ctx, visitID)
}

// CreatePayment bundles pending charges of a visit into a payment. With no
// IDs every collectable charge is taken.
func (s *BillingService) CreatePayment(ctx context.Context, in domain.CreatePaymentInput) (*domain.Payment, error) {
	a, err := requireRole(ctx, "collect payments", journey.RoleCashier)
	if err != nil {
		return nil, err
	}

	ids := uniqueIDs(in.BillingItemIDs)
	var payment *domain.Payment
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, _ *events.Batch) error {
		v, err := s.repos.Visits.GetByID(ctx, in.VisitID)
		if err != nil {
			return err
		}
		if v.Status.IsTerminal() {
			return errors.Conflict("visit is closed")
		}

		items, err := s.repos.Billing.ListCollectable(ctx, v.ID, ids)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return errors.BadRequest("no pending billing items to collect")
		}
		if len(ids) > 0 && len(items) != len(ids) {
			return errors.Conflict("some billing items are not pending or already belong to an open payment")
		}

		p := &domain.Payment{VisitID: v.ID, CashierID: a.ID}
		if err := s.repos.Payments.Create(ctx, p, items); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// GetPayment gets a payment with its line items and allocations
func (s *BillingService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.repos.Payments.GetByID(ctx, id)
}

func checkAllocations(allocs []domain.AllocationInput) (int64, error) {
	if len(allocs) == 0 {
		return 0, errors.Validation(map[string]string{"allocations": "at least one allocation is required"})
	}

	details := map[string]string{}
	var sum int64
	for i, alloc := range allocs {
		if alloc.Amount <= 0 {
			details[fmt.Sprintf("allocations[%d].amount", i)] = "must be greater than 0"
		}
		if !domain.IsPaymentMethod(alloc.Method) {
			details[fmt.Sprintf("allocations[%d].method", i)] = "must be one of: cash, card, mobile_money, insurance, bank_transfer"
		}
		if alloc.Amount > 0 {
			if sum > math.MaxInt64-alloc.Amount {
				details["allocations"] = "total is too large"
				continue
			}
			sum += alloc.Amount
		}
	}
	if len(details) > 0 {
		return 0, errors.Validation(details)
	}
	return sum, nil
}

// exceedsDue reports whether the allocations, taken in order, pay more
// than due. It never forms a sum that could wrap.
func exceedsDue(allocs []domain.AllocationInput, due int64) bool {
	remaining := due
	for _, alloc := range allocs {
		if alloc.Amount > remaining {
			return true
		}
		remaining -= alloc.Amount
	}
	return false
}

// ApplyPaymentMethodAllocations settles all or part of a payment. Once the
// payment is fully paid its charges and their orders are marked paid and the
// visit is routed onwards in the same transaction.
func (s *BillingService) ApplyPaymentMethodAllocations(ctx context.Context, in domain.ApplyAllocationsInput) (*domain.AllocationResult, error) {
	a, err := requireRole(ctx, "collect payments", journey.RoleCashier)
	if err != nil {
		return nil, err
	}
	sum, err := checkAllocations(in.Allocations)
	if err != nil {
		return nil, err
	}

	var result *domain.AllocationResult
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		p, err := s.repos.Payments.GetForUpdate(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return errors.Conflict("payment is " + p.Status)
		}
		if exceedsDue(in.Allocations, p.AmountDue) {
			return errors.BadRequest("allocations exceed the amount due").WithDetails(map[string]string{
				"amount_due": fmt.Sprintf("%d", p.AmountDue),
				"allocated":  fmt.Sprintf("%d", sum),
			})
		}

		for _, line := range in.Allocations {
			alloc := &domain.Allocation{
				PaymentID:  p.ID,
				Method:     line.Method,
				Amount:     line.Amount,
				Reference:  line.Reference,
				ReceivedBy: a.ID,
			}
			if err := s.repos.Payments.AddAllocation(ctx, alloc); err != nil {
				return err
			}
			p.Allocations = append(p.Allocations, *alloc)
		}

		p.AmountPaid += sum
		p.AmountDue = p.TotalAmount - p.AmountPaid
		p.Status = domain.PaymentPartial
		if p.AmountDue == 0 {
			paidAt := now()
			p.Status = domain.PaymentPaid
			p.PaidAt = &paidAt
		}
		if err := s.repos.Payments.UpdateTotals(ctx, p); err != nil {
			return err
		}

		result = &domain.AllocationResult{Payment: p}
		if p.Status == domain.PaymentPaid {
			if err := s.settle(ctx, p); err != nil {
				return err
			}
			moved, err := s.journey.AutoUpdateAfterPayment(ctx, p.VisitID, a, batch)
			if err != nil {
				return err
			}
			result.Advanced = moved
			batch.PaymentCompleted(p, s.cfg.Currency)
		}

		v, err := s.repos.Visits.GetByID(ctx, p.VisitID)
		if err != nil {
			return err
		}
		result.VisitStatus = v.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("payment_id", result.Payment.ID).
		Str("status", result.Payment.Status).
		Int64("amount_paid", result.Payment.AmountPaid).
		Bool("visit_advanced", result.Advanced).
		Msg("payment allocations applied")
	return result, nil
}

// settle marks a paid payment's charges and their orders paid
func (s *BillingService) settle(ctx context.Context, p *domain.Payment) error {
	sources, err := s.repos.Billing.MarkPaidForPayment(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, src := range sources {
		kind, ok := domain.KindForBillingSource(src.SourceType)
		if !ok {
			continue
		}
		if err := s.repos.Orders.SetPaymentStatus(ctx, kind, src.SourceID, domain.PayStatusPaid); err != nil {
			return err
		}
	}
	return nil
}

func canWaive(a *actor.Actor) bool {
	return a.HasRole(string(journey.RoleAdmin)) || a.Can(permissions.BillingWaive)
}

// WaiveBillingItem waives a pending charge that is not part of an open
// payment and routes the visit when that was the last pending charge
func (s *BillingService) WaiveBillingItem(ctx context.Context, id string, in domain.WaiveInput) (*domain.BillingItem, error) {
	a, _, err := currentActor(ctx)
	if err != nil {
		return nil, err
	}
	if !canWaive(a) {
		return nil, errors.Forbidden("missing permission " + permissions.BillingWaive)
	}
	if in.Reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "is required"})
	}

	var item *domain.BillingItem
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		b, err := s.repos.Billing.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != domain.PayStatusPending {
			return errors.Conflict("billing item is " + b.Status)
		}
		open, err := s.repos.Billing.InOpenPayment(ctx, b.ID)
		if err != nil {
			return err
		}
		if open {
			return errors.Conflict("billing item is part of an open payment")
		}

		if err := s.repos.Billing.Waive(ctx, b, in.Reason, a.ID); err != nil {
			return err
		}
		if kind, ok := domain.KindForBillingSource(b.SourceType); ok {
			if err := s.repos.Orders.SetPaymentStatus(ctx, kind, b.SourceID, domain.PayStatusWaived); err != nil {
				return err
			}
		}
		if _, err := s.journey.AutoUpdateAfterPayment(ctx, b.VisitID, a, batch); err != nil {
			return err
		}

		batch.BillingItemWaived(b)
		item = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CashierQueue lists visits waiting for payment, oldest first. The facility
// defaults to the caller's own.
func (s *BillingService) CashierQueue(ctx context.Context, facilityID string) ([]*domain.CashierQueueEntry, error) {
	if facilityID == "" {
		facilityID = tenant.FacilityID(ctx)
	}
	limit := s.cfg.CashierQueueLimit
	if limit <= 0 {
		limit = 200
	}
	return s.repos.Visits.CashierQueue(ctx, facilityID, limit)
}
