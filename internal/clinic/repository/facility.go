package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/permissions"
)

// FacilityRepository reads facilities
type FacilityRepository struct {
	db *database.DB
}

// NewFacilityRepository creates a new facility repository
func NewFacilityRepository(db *database.DB) *FacilityRepository {
	return &FacilityRepository{db: db}
}

// GetByID gets a facility of the current tenant
func (r *FacilityRepository) GetByID(ctx context.Context, id string) (*domain.Facility, error) {
	var f domain.Facility
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM facilities WHERE id = $1 AND tenant_id = $2`
		if err := r.db.GetContext(ctx, &f, query, id, tenantID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("facility")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// List lists the tenant's facilities
func (r *FacilityRepository) List(ctx context.Context) ([]*domain.Facility, error) {
	var out []*domain.Facility
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		return r.db.SelectContext(ctx, &out, `SELECT * FROM facilities WHERE tenant_id = $1 ORDER BY code`, tenantID)
	})
	return out, err
}

// StaffRepository reads staff members and their role permissions
type StaffRepository struct {
	db *database.DB
}

// NewStaffRepository creates a new staff repository
func NewStaffRepository(db *database.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

type staffRow struct {
	domain.StaffMember
	RolePermissions []byte `db:"role_permissions"`
}

const staffSelect = `
	SELECT u.id, u.tenant_id, u.facility_id, u.email, u.first_name, u.last_name,
	       u.role, u.is_active, u.created_at,
	       COALESCE(r.permissions, '[]'::jsonb) AS role_permissions
	FROM users u
	LEFT JOIN roles r ON r.name = u.role
`

// GetByEmail loads an active staff member. The tenant is passed explicitly
// because tokens are issued before any tenant context exists.
func (r *StaffRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.StaffMember, error) {
	var row staffRow
	err := r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := staffSelect + ` WHERE u.tenant_id = $1 AND lower(u.email) = lower($2) AND u.is_active`
		if err := r.db.GetContext(ctx, &row, query, tenantID, email); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("staff member")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.member()
}

func (row *staffRow) member() (*domain.StaffMember, error) {
	m := row.StaffMember
	var perms []string
	if err := json.Unmarshal(row.RolePermissions, &perms); err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		perms = permissions.DefaultRolePermissions[m.Role]
	}
	m.Permissions = perms
	return &m, nil
}
