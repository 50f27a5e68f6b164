package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/pkg/database"
)

// AuditRepository persists the audit trail
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes an entry. Redelivered events with a known event_id are
// ignored; the returned bool is false in that case.
func (r *AuditRepository) Insert(ctx context.Context, entry *domain.AuditLog) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage("{}")
	}

	var inserted bool
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		entry.TenantID = tenantID
		query := `
			INSERT INTO audit_logs (
				id, tenant_id, event_id, actor_id, actor_role, action, resource_type, resource_id, details
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (event_id) WHERE event_id IS NOT NULL DO NOTHING
		`
		res, err := r.db.ExecContext(ctx, query,
			entry.ID, entry.TenantID, entry.EventID, entry.ActorID, entry.ActorRole,
			entry.Action, entry.ResourceType, entry.ResourceID, entry.Details,
		)
		if err != nil {
			return database.Translate(err)
		}
		n, err := res.RowsAffected()
		inserted = n == 1
		return err
	})
	return inserted, err
}

// List lists the newest entries, optionally for one resource
func (r *AuditRepository) List(ctx context.Context, resourceType, resourceID string, page, perPage int) ([]*domain.AuditLog, int64, error) {
	var (
		entries []*domain.AuditLog
		total   int64
	)
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		where := `
			WHERE tenant_id = $1
			  AND ($2::text = '' OR resource_type = $2::text)
			  AND ($3::text = '' OR resource_id::text = $3::text)
		`
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, tenantID, resourceType, resourceID); err != nil {
			return err
		}
		query := `SELECT * FROM audit_logs` + where + ` ORDER BY created_at DESC LIMIT $4 OFFSET $5`
		return r.db.SelectContext(ctx, &entries, query, tenantID, resourceType, resourceID, perPage, (page-1)*perPage)
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
