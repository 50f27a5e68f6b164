// Package service implements the clinic operations: registration, the
// journey, orders, payments and pharmacy stock. Each operation runs in one
// tenant-scoped transaction and publishes its events after commit.
package service

import (
	"context"
	"time"

	"github.com/medflow/medflow-clinic/internal/clinic/events"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/tenant"
)

var now = func() time.Time { return time.Now().UTC() }

// currentActor returns the authenticated actor and its journey role
func currentActor(ctx context.Context) (*actor.Actor, journey.Role, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, "", errors.Unauthorized("authentication required")
	}
	return a, journey.Role(a.Role), nil
}

// requireRole returns the actor when it holds one of roles or is admin
func requireRole(ctx context.Context, action string, roles ...journey.Role) (*actor.Actor, error) {
	a, role, err := currentActor(ctx)
	if err != nil {
		return nil, err
	}
	if role == journey.RoleAdmin {
		return a, nil
	}
	for _, r := range roles {
		if role == r {
			return a, nil
		}
	}
	return nil, errors.Forbidden("role " + a.Role + " cannot " + action)
}

// inTenantTx runs fn in one tenant transaction and flushes the events it
// collected once that transaction has committed
func inTenantTx(ctx context.Context, db *database.DB, pub *events.ClinicEventPublisher, fn func(ctx context.Context, batch *events.Batch) error) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.Unauthorized("tenant context required")
	}

	batch := &events.Batch{}
	err = db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return fn(ctx, batch)
	})
	if err != nil {
		return err
	}
	pub.Flush(ctx, batch)
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
