package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// BillingRepository handles billing item persistence
type BillingRepository struct {
	db *database.DB
}

// NewBillingRepository creates a new billing repository
func NewBillingRepository(db *database.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// Create inserts a billing item. TotalAmount is derived from quantity and
// unit price.
func (r *BillingRepository) Create(ctx context.Context, b *domain.BillingItem) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Quantity == 0 {
		b.Quantity = 1
	}
	b.TotalAmount = int64(b.Quantity) * b.UnitPrice

	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		b.TenantID = tenantID
		query := `
			INSERT INTO billing_items (
				id, tenant_id, visit_id, source_type, source_id, description,
				quantity, unit_price, total_amount, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at
		`
		err := r.db.QueryRowxContext(ctx, query,
			b.ID, b.TenantID, b.VisitID, b.SourceType, b.SourceID, b.Description,
			b.Quantity, b.UnitPrice, b.TotalAmount, b.Status,
		).Scan(&b.CreatedAt, &b.UpdatedAt)
		return database.Translate(err)
	})
}

// GetForUpdate gets a billing item and locks its row
func (r *BillingRepository) GetForUpdate(ctx context.Context, id string) (*domain.BillingItem, error) {
	var b domain.BillingItem
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM billing_items WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
		if err := r.db.GetContext(ctx, &b, query, id, tenantID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("billing item")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBySource returns the live billing item of a source, or nil
func (r *BillingRepository) GetBySource(ctx context.Context, sourceType, sourceID string) (*domain.BillingItem, error) {
	var b domain.BillingItem
	found := true
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			SELECT * FROM billing_items
			WHERE tenant_id = $1 AND source_type = $2 AND source_id = $3 AND status <> 'cancelled'
			LIMIT 1
		`
		if err := r.db.GetContext(ctx, &b, query, tenantID, sourceType, sourceID); err != nil {
			if err == sql.ErrNoRows {
				found = false
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &b, nil
}

// ListByVisit lists a visit's billing items, oldest first
func (r *BillingRepository) ListByVisit(ctx context.Context, visitID string) ([]*domain.BillingItem, error) {
	var out []*domain.BillingItem
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM billing_items WHERE visit_id = $1 AND tenant_id = $2 ORDER BY created_at, id`
		return r.db.SelectContext(ctx, &out, query, visitID, tenantID)
	})
	return out, err
}

// ListCollectable locks and returns pending items of a visit that are not
// already bundled into an open payment. When ids is non-empty only those
// items are considered.
func (r *BillingRepository) ListCollectable(ctx context.Context, visitID string, ids []string) ([]*domain.BillingItem, error) {
	var out []*domain.BillingItem
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			SELECT b.* FROM billing_items b
			WHERE b.visit_id = $1 AND b.tenant_id = $2 AND b.status = 'pending'
			  AND (COALESCE(cardinality($3::uuid[]), 0) = 0 OR b.id = ANY($3::uuid[]))
			  AND NOT EXISTS (
				SELECT 1 FROM payment_line_items li
				JOIN payments p ON p.id = li.payment_id
				WHERE li.billing_item_id = b.id AND p.status IN ('pending', 'partial')
			  )
			ORDER BY b.created_at, b.id
			FOR UPDATE OF b
		`
		return r.db.SelectContext(ctx, &out, query, visitID, tenantID, pq.Array(ids))
	})
	return out, err
}

// CountPending counts a visit's pending billing items
func (r *BillingRepository) CountPending(ctx context.Context, visitID string) (int, error) {
	var n int
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT COUNT(*) FROM billing_items WHERE visit_id = $1 AND tenant_id = $2 AND status = 'pending'`
		return r.db.GetContext(ctx, &n, query, visitID, tenantID)
	})
	return n, err
}

// InOpenPayment reports whether the item is bundled into a pending or
// partial payment
func (r *BillingRepository) InOpenPayment(ctx context.Context, id string) (bool, error) {
	var open bool
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			SELECT EXISTS (
				SELECT 1 FROM payment_line_items li
				JOIN payments p ON p.id = li.payment_id
				WHERE li.billing_item_id = $1 AND p.tenant_id = $2 AND p.status IN ('pending', 'partial')
			)
		`
		return r.db.GetContext(ctx, &open, query, id, tenantID)
	})
	return open, err
}

// SettledSource identifies the origin of a billing item
type SettledSource struct {
	SourceType string `db:"source_type"`
	SourceID   string `db:"source_id"`
}

// MarkPaidForPayment marks the pending items of a payment paid and returns
// their sources
func (r *BillingRepository) MarkPaidForPayment(ctx context.Context, paymentID string) ([]SettledSource, error) {
	var out []SettledSource
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			UPDATE billing_items b
			SET status = 'paid'
			FROM payment_line_items li
			WHERE li.payment_id = $1 AND li.billing_item_id = b.id
			  AND b.tenant_id = $2 AND b.status = 'pending'
			RETURNING b.source_type, b.source_id
		`
		return r.db.SelectContext(ctx, &out, query, paymentID, tenantID)
	})
	return out, err
}

// Waive marks a billing item waived
func (r *BillingRepository) Waive(ctx context.Context, b *domain.BillingItem, reason, by string) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			UPDATE billing_items
			SET status = 'waived', waived_reason = $3, waived_by = $4
			WHERE id = $1 AND tenant_id = $2 AND status = 'pending'
			RETURNING updated_at
		`
		err := r.db.QueryRowxContext(ctx, query, b.ID, tenantID, reason, by).Scan(&b.UpdatedAt)
		if err == sql.ErrNoRows {
			return errors.Conflict("billing item is not pending")
		}
		if err != nil {
			return database.Translate(err)
		}
		b.Status = domain.PayStatusWaived
		b.WaivedReason = &reason
		b.WaivedBy = &by
		return nil
	})
}

// CancelPendingBySource cancels the pending item of a source
func (r *BillingRepository) CancelPendingBySource(ctx context.Context, sourceType, sourceID string) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			UPDATE billing_items SET status = 'cancelled'
			WHERE tenant_id = $1 AND source_type = $2 AND source_id = $3 AND status = 'pending'
		`
		_, err := r.db.ExecContext(ctx, query, tenantID, sourceType, sourceID)
		return err
	})
}

// CancelPendingForVisit cancels every pending item of a visit
func (r *BillingRepository) CancelPendingForVisit(ctx context.Context, visitID string) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `UPDATE billing_items SET status = 'cancelled' WHERE visit_id = $1 AND tenant_id = $2 AND status = 'pending'`
		_, err := r.db.ExecContext(ctx, query, visitID, tenantID)
		return err
	})
}
