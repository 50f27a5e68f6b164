package repository

import (
	"context"
	"database/sql"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// ServiceRepository reads the billable service catalog
type ServiceRepository struct {
	db *database.DB
}

// NewServiceRepository creates a new service catalog repository
func NewServiceRepository(db *database.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// GetByID gets a catalog entry by ID
func (r *ServiceRepository) GetByID(ctx context.Context, id string) (*domain.Service, error) {
	var s domain.Service
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM services WHERE id = $1 AND tenant_id = $2`
		if err := r.db.GetContext(ctx, &s, query, id, tenantID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("service")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List lists active catalog entries, optionally filtered by category
func (r *ServiceRepository) List(ctx context.Context, category string) ([]*domain.Service, error) {
	var out []*domain.Service
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			SELECT * FROM services
			WHERE tenant_id = $1 AND is_active AND ($2::text = '' OR category = $2::text)
			ORDER BY category, name
		`
		return r.db.SelectContext(ctx, &out, query, tenantID, category)
	})
	return out, err
}
