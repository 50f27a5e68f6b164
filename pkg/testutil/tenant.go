package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/permissions"
	"github.com/medflow/medflow-clinic/pkg/tenant"
)

// TestTenant is a tenant with one facility, created for a single test
type TestTenant struct {
	ID           string
	Name         string
	Slug         string
	FacilityID   string
	FacilityCode string
}

// TenantManager creates and removes test tenants. Tenants share the clinic
// tables, so isolation comes from every test using its own tenant ID.
type TenantManager struct {
	db      *sqlx.DB
	tenants []TestTenant
	seq     int
	mu      sync.Mutex
}

// NewTenantManager creates a new tenant manager for tests
func NewTenantManager(db *sqlx.DB) *TenantManager {
	return &TenantManager{db: db}
}

// CreateTenant inserts a tenant and its main facility.
//
//	tt, err := tm.CreateTenant(ctx, "north-clinic")
//	ctx = testutil.WithTestTenant(ctx, tt)
func (tm *TenantManager) CreateTenant(ctx context.Context, name string) (*TestTenant, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.seq++
	t := TestTenant{
		ID:           uuid.New().String(),
		Name:         name,
		Slug:         fmt.Sprintf("%s-%s", strings.ToLower(strings.ReplaceAll(name, " ", "-")), uuid.New().String()[:8]),
		FacilityID:   uuid.New().String(),
		FacilityCode: fmt.Sprintf("T%03d", tm.seq),
	}

	if _, err := tm.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug) VALUES ($1, $2, $3)`,
		t.ID, t.Name, t.Slug,
	); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	if _, err := tm.db.ExecContext(ctx,
		`INSERT INTO facilities (id, tenant_id, name, code) VALUES ($1, $2, $3, $4)`,
		t.FacilityID, t.ID, t.Name+" Main", t.FacilityCode,
	); err != nil {
		return nil, fmt.Errorf("failed to create facility: %w", err)
	}

	tm.tenants = append(tm.tenants, t)
	return &t, nil
}

// CreateStaff inserts a staff member with role at the tenant's facility and
// returns the matching actor.
func (tm *TenantManager) CreateStaff(ctx context.Context, t *TestTenant, role string) (*actor.Actor, error) {
	tm.mu.Lock()
	tm.seq++
	seq := tm.seq
	tm.mu.Unlock()

	a := &actor.Actor{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("Test %s", role),
		Email:       fmt.Sprintf("%s%d@%s.test", role, seq, t.Slug),
		TenantID:    t.ID,
		FacilityID:  t.FacilityID,
		Role:        role,
		Permissions: permissions.DefaultRolePermissions[role],
	}

	if _, err := tm.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, facility_id, email, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, 'Test', $5, $6)
	`, a.ID, t.ID, t.FacilityID, a.Email, role, role); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", role, err)
	}

	return a, nil
}

// DropTenant deletes a tenant and, by cascade, everything it owns
func (tm *TenantManager) DropTenant(ctx context.Context, t *TestTenant) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// audit_logs carries no foreign key so it is cleared by hand
	if _, err := tm.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE tenant_id = $1", t.ID); err != nil {
		return fmt.Errorf("failed to delete audit logs: %w", err)
	}
	if _, err := tm.db.ExecContext(ctx, "DELETE FROM tenants WHERE id = $1", t.ID); err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	for i, tracked := range tm.tenants {
		if tracked.ID == t.ID {
			tm.tenants = append(tm.tenants[:i], tm.tenants[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup drops every tenant this manager created
func (tm *TenantManager) Cleanup(ctx context.Context) error {
	tm.mu.Lock()
	tenants := make([]TestTenant, len(tm.tenants))
	copy(tenants, tm.tenants)
	tm.mu.Unlock()

	for i := range tenants {
		if err := tm.DropTenant(ctx, &tenants[i]); err != nil {
			return err
		}
	}
	return nil
}

// WithTestTenant scopes ctx to the tenant and its facility
func WithTestTenant(ctx context.Context, t *TestTenant) context.Context {
	return tenant.WithTenantContext(ctx, t.ID, t.FacilityID)
}

// AsStaff scopes ctx to the tenant and makes a the acting staff member
func AsStaff(ctx context.Context, t *TestTenant, a *actor.Actor) context.Context {
	return actor.WithActor(WithTestTenant(ctx, t), a)
}

// TestActor builds an actor without touching the database, for unit tests
// that stop before any query runs.
func TestActor(role string) *actor.Actor {
	return &actor.Actor{
		ID:          "00000000-0000-0000-0000-0000000000a1",
		Name:        "Test " + role,
		Email:       role + "@clinic.test",
		TenantID:    TestTenantID,
		FacilityID:  TestFacilityID,
		Role:        role,
		Permissions: permissions.DefaultRolePermissions[role],
	}
}

// Fixed identifiers for unit tests
const (
	TestTenantID   = "00000000-0000-0000-0000-00000000000a"
	TestFacilityID = "00000000-0000-0000-0000-00000000000f"
)

// TestContext returns a context acting as role in the fixed unit-test tenant
func TestContext(role string) context.Context {
	ctx := tenant.WithTenantContext(context.Background(), TestTenantID, TestFacilityID)
	return actor.WithActor(ctx, TestActor(role))
}
