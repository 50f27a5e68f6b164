package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// InventoryRepository handles pharmacy stock and its movement ledger
type InventoryRepository struct {
	db *database.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *database.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// Create inserts an inventory item
func (r *InventoryRepository) Create(ctx context.Context, item *domain.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Unit == "" {
		item.Unit = "unit"
	}

	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		item.TenantID = tenantID
		query := `
			INSERT INTO inventory_items (
				id, tenant_id, facility_id, sku, name, unit, unit_price, quantity_on_hand, reorder_level
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING is_active, created_at, updated_at
		`
		err := r.db.QueryRowxContext(ctx, query,
			item.ID, item.TenantID, item.FacilityID, item.SKU, item.Name, item.Unit,
			item.UnitPrice, item.QuantityOnHand, item.ReorderLevel,
		).Scan(&item.IsActive, &item.CreatedAt, &item.UpdatedAt)
		return database.Translate(err)
	})
}

// GetByID gets an inventory item by ID
func (r *InventoryRepository) GetByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate gets an inventory item and locks its row
func (r *InventoryRepository) GetForUpdate(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return r.get(ctx, id, true)
}

func (r *InventoryRepository) get(ctx context.Context, id string, lock bool) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM inventory_items WHERE id = $1 AND tenant_id = $2`
		if lock {
			query += ` FOR UPDATE`
		}
		if err := r.db.GetContext(ctx, &item, query, id, tenantID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("inventory item")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List lists inventory items of a facility, optionally only those at or
// below their reorder level
func (r *InventoryRepository) List(ctx context.Context, facilityID string, lowStock bool, page, perPage int) ([]*domain.InventoryItem, int64, error) {
	var (
		items []*domain.InventoryItem
		total int64
	)
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		where := `
			WHERE tenant_id = $1
			  AND ($2::text = '' OR facility_id::text = $2::text)
			  AND (NOT $3 OR quantity_on_hand <= reorder_level)
		`
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM inventory_items`+where, tenantID, facilityID, lowStock); err != nil {
			return err
		}
		query := `SELECT * FROM inventory_items` + where + ` ORDER BY name LIMIT $4 OFFSET $5`
		return r.db.SelectContext(ctx, &items, query, tenantID, facilityID, lowStock, perPage, (page-1)*perPage)
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ApplyMovement changes quantity_on_hand by m.Delta and appends m to the
// ledger. The CHECK on quantity_on_hand turns an overdraw into a conflict.
func (r *InventoryRepository) ApplyMovement(ctx context.Context, m *domain.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		m.TenantID = tenantID
		query := `
			UPDATE inventory_items
			SET quantity_on_hand = quantity_on_hand + $3
			WHERE id = $1 AND tenant_id = $2
			RETURNING quantity_on_hand
		`
		if err := r.db.GetContext(ctx, &m.QuantityAfter, query, m.ItemID, tenantID, m.Delta); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("inventory item")
			}
			return database.Translate(err)
		}

		insert := `
			INSERT INTO stock_movements (
				id, tenant_id, item_id, delta, quantity_after, reason,
				reference_type, reference_id, performed_by, notes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at
		`
		err := r.db.QueryRowxContext(ctx, insert,
			m.ID, m.TenantID, m.ItemID, m.Delta, m.QuantityAfter, m.Reason,
			m.ReferenceType, m.ReferenceID, m.PerformedBy, m.Notes,
		).Scan(&m.CreatedAt)
		return database.Translate(err)
	})
}

// ListMovements lists the newest ledger lines of an item
func (r *InventoryRepository) ListMovements(ctx context.Context, itemID string, limit int) ([]*domain.StockMovement, error) {
	var out []*domain.StockMovement
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			SELECT * FROM stock_movements
			WHERE item_id = $1 AND tenant_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		`
		return r.db.SelectContext(ctx, &out, query, itemID, tenantID, limit)
	})
	return out, err
}
