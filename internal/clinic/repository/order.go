package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// OrderRepository handles the four order tables behind one Order shape
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// orderColumns projects any order table onto domain.Order
func orderColumns(kind domain.OrderKind) string {
	service := "service_id"
	item := "NULL::uuid AS inventory_item_id"
	result := "result_summary"
	medication := "NULL::text AS dosage, NULL::timestamptz AS dispensed_at, NULL::uuid AS dispensed_by"

	switch kind {
	case domain.OrderMedication:
		service = "NULL::uuid AS service_id"
		item = "inventory_item_id"
		result = "NULL::text AS result_summary"
		medication = "dosage, dispensed_at, dispensed_by"
	case domain.OrderProcedure:
		result = "NULL::text AS result_summary"
	}

	return fmt.Sprintf(
		`id, tenant_id, visit_id, '%s' AS kind, %s, %s, ordered_by, quantity, unit_price,
		status, payment_status, %s, %s, notes, created_at, updated_at`,
		kind, service, item, result, medication,
	)
}

// Create inserts an order into its kind's table
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		o.TenantID = tenantID
		var (
			query string
			args  []interface{}
		)
		if o.Kind == domain.OrderMedication {
			query = `
				INSERT INTO medication_orders (
					id, tenant_id, visit_id, inventory_item_id, ordered_by, quantity, unit_price,
					dosage, status, payment_status, notes
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				RETURNING created_at, updated_at
			`
			args = []interface{}{
				o.ID, o.TenantID, o.VisitID, o.InventoryItemID, o.OrderedBy, o.Quantity, o.UnitPrice,
				o.Dosage, o.Status, o.PaymentStatus, o.Notes,
			}
		} else {
			query = fmt.Sprintf(`
				INSERT INTO %s (
					id, tenant_id, visit_id, service_id, ordered_by, quantity, unit_price,
					status, payment_status, notes
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING created_at, updated_at
			`, o.Kind.Table())
			args = []interface{}{
				o.ID, o.TenantID, o.VisitID, o.ServiceID, o.OrderedBy, o.Quantity, o.UnitPrice,
				o.Status, o.PaymentStatus, o.Notes,
			}
		}

		err := r.db.QueryRowxContext(ctx, query, args...).Scan(&o.CreatedAt, &o.UpdatedAt)
		return database.Translate(err)
	})
}

// GetByID gets an order of the given kind
func (r *OrderRepository) GetByID(ctx context.Context, kind domain.OrderKind, id string) (*domain.Order, error) {
	return r.get(ctx, kind, id, false)
}

// GetForUpdate gets an order and locks its row
func (r *OrderRepository) GetForUpdate(ctx context.Context, kind domain.OrderKind, id string) (*domain.Order, error) {
	return r.get(ctx, kind, id, true)
}

func (r *OrderRepository) get(ctx context.Context, kind domain.OrderKind, id string, lock bool) (*domain.Order, error) {
	var o domain.Order
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND tenant_id = $2`, orderColumns(kind), kind.Table())
		if lock {
			query += ` FOR UPDATE`
		}
		if err := r.db.GetContext(ctx, &o, query, id, tenantID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound(string(kind) + " order")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByVisit lists every order on a visit, oldest first
func (r *OrderRepository) ListByVisit(ctx context.Context, visitID string) ([]*domain.Order, error) {
	var out []*domain.Order
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := ""
		for i, kind := range domain.OrderKinds {
			if i > 0 {
				query += " UNION ALL "
			}
			query += fmt.Sprintf(`SELECT %s FROM %s WHERE visit_id = $1 AND tenant_id = $2`, orderColumns(kind), kind.Table())
		}
		query += ` ORDER BY created_at`
		return r.db.SelectContext(ctx, &out, query, visitID, tenantID)
	})
	return out, err
}

// UpdateWorkStatus sets an order's work status and, for lab and imaging
// orders, its result summary
func (r *OrderRepository) UpdateWorkStatus(ctx context.Context, o *domain.Order) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		var (
			query string
			args  = []interface{}{o.ID, tenantID, o.Status}
		)
		switch o.Kind {
		case domain.OrderLab, domain.OrderImaging:
			query = fmt.Sprintf(`UPDATE %s SET status = $3, result_summary = $4 WHERE id = $1 AND tenant_id = $2 RETURNING updated_at`, o.Kind.Table())
			args = append(args, o.ResultSummary)
		default:
			query = fmt.Sprintf(`UPDATE %s SET status = $3 WHERE id = $1 AND tenant_id = $2 RETURNING updated_at`, o.Kind.Table())
		}
		err := r.db.QueryRowxContext(ctx, query, args...).Scan(&o.UpdatedAt)
		if err == sql.ErrNoRows {
			return errors.NotFound(string(o.Kind) + " order")
		}
		return database.Translate(err)
	})
}

// SetPaymentStatus moves a pending order to paid or waived
func (r *OrderRepository) SetPaymentStatus(ctx context.Context, kind domain.OrderKind, id, status string) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := fmt.Sprintf(
			`UPDATE %s SET payment_status = $3 WHERE id = $1 AND tenant_id = $2 AND payment_status = 'pending'`,
			kind.Table(),
		)
		_, err := r.db.ExecContext(ctx, query, id, tenantID, status)
		return database.Translate(err)
	})
}

// MarkDispensed records a dispensed medication order
func (r *OrderRepository) MarkDispensed(ctx context.Context, o *domain.Order, by string, at time.Time) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			UPDATE medication_orders
			SET status = 'dispensed', dispensed_at = $3, dispensed_by = $4
			WHERE id = $1 AND tenant_id = $2 AND status = 'ordered'
			RETURNING updated_at
		`
		err := r.db.QueryRowxContext(ctx, query, o.ID, tenantID, at, by).Scan(&o.UpdatedAt)
		if err == sql.ErrNoRows {
			return errors.Conflict("medication order is no longer open")
		}
		if err != nil {
			return database.Translate(err)
		}
		o.Status = domain.OrderStatusDispensed
		o.DispensedAt = &at
		o.DispensedBy = &by
		return nil
	})
}

// CancelOpenForVisit cancels every order on a visit that has not finished
func (r *OrderRepository) CancelOpenForVisit(ctx context.Context, visitID string) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		for _, kind := range domain.OrderKinds {
			query := fmt.Sprintf(
				`UPDATE %s SET status = 'cancelled' WHERE visit_id = $1 AND tenant_id = $2 AND status IN ('ordered', 'in_progress')`,
				kind.Table(),
			)
			if _, err := r.db.ExecContext(ctx, query, visitID, tenantID); err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingWork reports which departments have settled orders still waiting
func (r *OrderRepository) PendingWork(ctx context.Context, visitID string) (journey.OrderWork, error) {
	var row struct {
		Lab      bool `db:"lab"`
		Imaging  bool `db:"imaging"`
		Pharmacy bool `db:"pharmacy"`
	}
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			SELECT
				EXISTS (SELECT 1 FROM lab_orders WHERE visit_id = $1 AND tenant_id = $2
					AND payment_status IN ('paid', 'waived') AND status IN ('ordered', 'in_progress')) AS lab,
				EXISTS (SELECT 1 FROM imaging_orders WHERE visit_id = $1 AND tenant_id = $2
					AND payment_status IN ('paid', 'waived') AND status IN ('ordered', 'in_progress')) AS imaging,
				EXISTS (SELECT 1 FROM medication_orders WHERE visit_id = $1 AND tenant_id = $2
					AND payment_status IN ('paid', 'waived') AND status = 'ordered') AS pharmacy
		`
		return r.db.GetContext(ctx, &row, query, visitID, tenantID)
	})
	if err != nil {
		return journey.OrderWork{}, err
	}
	return journey.OrderWork{Lab: row.Lab, Imaging: row.Imaging, Pharmacy: row.Pharmacy}, nil
}
