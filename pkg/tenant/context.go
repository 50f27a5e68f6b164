package tenant

import (
	"context"
	"errors"
)

type contextKey string

const (
	tenantIDKey   contextKey = "tenant_id"
	facilityIDKey contextKey = "facility_id"
)

var (
	// ErrNoTenantInContext is returned when tenant context is missing
	ErrNoTenantInContext = errors.New("no tenant in context")
)

// WithTenantContext attaches the tenant and the facility the caller works at.
// Set by the auth middleware from token claims.
func WithTenantContext(ctx context.Context, tenantID, facilityID string) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	return context.WithValue(ctx, facilityIDKey, facilityID)
}

// WithTenantID adds only tenant ID to context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID extracts tenant ID from context
func TenantID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(tenantIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoTenantInContext
	}
	return id, nil
}

// FacilityID returns the caller's home facility, or "" when unknown.
func FacilityID(ctx context.Context) string {
	id, _ := ctx.Value(facilityIDKey).(string)
	return id
}
