// Package repository persists the clinic aggregates. Every method resolves
// the tenant from the context and runs inside WithTenantRLS, joining the
// caller's transaction when one is open.
package repository

import (
	"context"

	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/tenant"
)

// Repositories bundles the clinic repositories over one database handle
type Repositories struct {
	Facilities *FacilityRepository
	Staff      *StaffRepository
	Patients   *PatientRepository
	Services   *ServiceRepository
	Visits     *VisitRepository
	Orders     *OrderRepository
	Billing    *BillingRepository
	Payments   *PaymentRepository
	Inventory  *InventoryRepository
	Audit      *AuditRepository
}

// New creates all clinic repositories
func New(db *database.DB) *Repositories {
	return &Repositories{
		Facilities: NewFacilityRepository(db),
		Staff:      NewStaffRepository(db),
		Patients:   NewPatientRepository(db),
		Services:   NewServiceRepository(db),
		Visits:     NewVisitRepository(db),
		Orders:     NewOrderRepository(db),
		Billing:    NewBillingRepository(db),
		Payments:   NewPaymentRepository(db),
		Inventory:  NewInventoryRepository(db),
		Audit:      NewAuditRepository(db),
	}
}

func scoped(ctx context.Context, db *database.DB, fn func(ctx context.Context, tenantID string) error) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}
	return db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return fn(ctx, tenantID)
	})
}
