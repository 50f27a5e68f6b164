// Package actor identifies the staff member (or the system) performing an
// action. Journey transitions, payments and audit entries all record the
// actor's ID and role.
package actor

import (
	"context"
	"fmt"

	"github.com/medflow/medflow-clinic/pkg/permissions"
)

// SystemID is the actor ID used for background and automatic transitions.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action
type Actor struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	TenantID    string   `json:"tenant_id"`
	FacilityID  string   `json:"facility_id,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// String returns a representation for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s, %s)", a.Name, a.Email, a.Role)
}

// HasRole reports whether the actor holds any of the given roles
func (a *Actor) HasRole(roles ...string) bool {
	if a == nil {
		return false
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Can reports whether the actor holds the permission, honouring wildcards.
func (a *Actor) Can(permission string) bool {
	if a == nil {
		return false
	}
	return permissions.HasPermission(a.Permissions, permission)
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == SystemID
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context, nil when absent.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(actorContextKey).(*Actor)
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns the actor used for automatic transitions.
func SystemActor(tenantID string) *Actor {
	return &Actor{
		ID:          SystemID,
		Name:        "System",
		Email:       "system@medflow.local",
		TenantID:    tenantID,
		Role:        "system",
		Permissions: []string{"*"},
	}
}
