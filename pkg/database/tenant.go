package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// WithTenantRLS runs fn inside a transaction scoped to one tenant.
//
//	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
//	    return r.db.GetContext(ctx, &visit, "SELECT ... FROM visits WHERE id = $1", id)
//	})
//
// The transaction sets search_path and app.current_tenant with SET LOCAL
// semantics, so the values vanish on commit and never leak to the next
// borrower of a pooled connection. Repositories still filter on tenant_id
// explicitly. Nested calls reuse the outer transaction.
func (db *DB) WithTenantRLS(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	if db.getTx(ctx) != nil {
		return fn(ctx)
	}

	return db.Transaction(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		searchPath := db.searchPath
		if searchPath == "" {
			searchPath = "public"
		}
		if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+searchPath); err != nil {
			return fmt.Errorf("failed to set search_path to %s: %w", searchPath, err)
		}

		if _, err := tx.ExecContext(ctx, "SELECT set_config('app.current_tenant', $1, true)", tenantID); err != nil {
			return fmt.Errorf("failed to set app.current_tenant: %w", err)
		}

		return fn(ctx)
	})
}

// InTransaction reports whether ctx carries an open transaction
func (db *DB) InTransaction(ctx context.Context) bool {
	return db.getTx(ctx) != nil
}

func (db *DB) getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
