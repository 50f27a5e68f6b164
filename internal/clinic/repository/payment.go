package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// PaymentRepository handles payments, their line items and allocations
type PaymentRepository struct {
	db *database.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment together with one line item per billing item
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment, items []*domain.BillingItem) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		p.TenantID = tenantID
		p.TotalAmount = 0
		for _, item := range items {
			p.TotalAmount += item.TotalAmount
		}
		p.AmountPaid = 0
		p.AmountDue = p.TotalAmount
		p.Status = domain.PaymentPending

		query := `
			INSERT INTO payments (id, tenant_id, visit_id, total_amount, amount_paid, amount_due, status, cashier_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`
		err := r.db.QueryRowxContext(ctx, query,
			p.ID, p.TenantID, p.VisitID, p.TotalAmount, p.AmountPaid, p.AmountDue, p.Status, p.CashierID,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return database.Translate(err)
		}

		p.LineItems = make([]domain.PaymentLineItem, 0, len(items))
		for _, item := range items {
			line := domain.PaymentLineItem{
				ID:            uuid.New().String(),
				PaymentID:     p.ID,
				BillingItemID: item.ID,
				Amount:        item.TotalAmount,
			}
			_, err := r.db.ExecContext(ctx,
				`INSERT INTO payment_line_items (id, payment_id, billing_item_id, amount) VALUES ($1, $2, $3, $4)`,
				line.ID, line.PaymentID, line.BillingItemID, line.Amount,
			)
			if err != nil {
				return database.Translate(err)
			}
			p.LineItems = append(p.LineItems, line)
		}
		p.Allocations = []domain.Allocation{}
		return nil
	})
}

// GetByID gets a payment with its line items and allocations
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate gets a payment and locks its row
func (r *PaymentRepository) GetForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return r.get(ctx, id, true)
}

func (r *PaymentRepository) get(ctx context.Context, id string, lock bool) (*domain.Payment, error) {
	var p domain.Payment
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM payments WHERE id = $1 AND tenant_id = $2`
		if lock {
			query += ` FOR UPDATE`
		}
		if err := r.db.GetContext(ctx, &p, query, id, tenantID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("payment")
			}
			return err
		}

		p.LineItems = []domain.PaymentLineItem{}
		if err := r.db.SelectContext(ctx, &p.LineItems,
			`SELECT * FROM payment_line_items WHERE payment_id = $1 ORDER BY id`, p.ID); err != nil {
			return err
		}
		p.Allocations = []domain.Allocation{}
		return r.db.SelectContext(ctx, &p.Allocations,
			`SELECT * FROM payment_method_allocations WHERE payment_id = $1 ORDER BY created_at, id`, p.ID)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddAllocation records one settlement line
func (r *PaymentRepository) AddAllocation(ctx context.Context, a *domain.Allocation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return scoped(ctx, r.db, func(ctx context.Context, _ string) error {
		query := `
			INSERT INTO payment_method_allocations (id, payment_id, method, amount, reference, received_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`
		err := r.db.QueryRowxContext(ctx, query,
			a.ID, a.PaymentID, a.Method, a.Amount, a.Reference, a.ReceivedBy,
		).Scan(&a.CreatedAt)
		return database.Translate(err)
	})
}

// UpdateTotals persists amount_paid, amount_due, status and paid_at
func (r *PaymentRepository) UpdateTotals(ctx context.Context, p *domain.Payment) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			UPDATE payments
			SET amount_paid = $3, amount_due = $4, status = $5, paid_at = $6
			WHERE id = $1 AND tenant_id = $2
			RETURNING updated_at
		`
		err := r.db.QueryRowxContext(ctx, query,
			p.ID, tenantID, p.AmountPaid, p.AmountDue, p.Status, p.PaidAt,
		).Scan(&p.UpdatedAt)
		if err == sql.ErrNoRows {
			return errors.NotFound("payment")
		}
		return database.Translate(err)
	})
}

// CancelOpenForVisit cancels a visit's pending and partial payments
func (r *PaymentRepository) CancelOpenForVisit(ctx context.Context, visitID string) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			UPDATE payments SET status = 'cancelled'
			WHERE visit_id = $1 AND tenant_id = $2 AND status IN ('pending', 'partial')
		`
		_, err := r.db.ExecContext(ctx, query, visitID, tenantID)
		return err
	})
}
