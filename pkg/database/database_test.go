package database

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return Wrap(sqlx.NewDb(raw, "postgres"), logger.Nop()), mock
}

func TestWithTenantRLS_SetsTenantAndCommits(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL search_path TO public")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('app.current_tenant', $1, true)")).
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE visits SET status = $1")).
		WithArgs("at_triage").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTenantRLS(context.Background(), "tenant-1", func(ctx context.Context) error {
		assert.True(t, db.InTransaction(ctx))

		// nested call joins the outer transaction
		return db.WithTenantRLS(ctx, "tenant-1", func(ctx context.Context) error {
			_, err := db.ExecContext(ctx, "UPDATE visits SET status = $1", "at_triage")
			return err
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTenantRLS_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	boom := fmt.Errorf("boom")
	err := db.WithTenantRLS(context.Background(), "tenant-1", func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavepoint_SwallowedFailureKeepsTransaction(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT billing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO billing_items").WillReturnError(fmt.Errorf("no price"))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT billing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE visits").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.Transaction(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		spErr := db.Savepoint(ctx, "billing", func(ctx context.Context) error {
			_, err := db.ExecContext(ctx, "INSERT INTO billing_items DEFAULT VALUES")
			return err
		})
		assert.Error(t, spErr)

		_, err := db.ExecContext(ctx, "UPDATE visits SET status = 'at_triage'")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavepoint_RequiresTransaction(t *testing.T) {
	db, _ := newMockDB(t)
	err := db.Savepoint(context.Background(), "x", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		sentinel error
	}{
		{"non pq error", fmt.Errorf("plain"), "", nil},
		{"payment overpaid", &pq.Error{Code: "23514", Constraint: "payments_amount_paid_within_total"}, "VALIDATION_ERROR", errors.ErrValidation},
		{"stock below zero", &pq.Error{Code: "23514", Constraint: "inventory_items_quantity_on_hand_non_negative"}, "CONFLICT", errors.ErrConflict},
		{"duplicate national id", &pq.Error{Code: "23505", Constraint: "patients_tenant_national_id_key"}, "CONFLICT", errors.ErrConflict},
		{"missing reference", &pq.Error{Code: "23503"}, "BAD_REQUEST", errors.ErrBadRequest},
		{"not null", &pq.Error{Code: "23502", Column: "first_name"}, "VALIDATION_ERROR", errors.ErrValidation},
		{"wrapped deadlock", fmt.Errorf("update: %w", &pq.Error{Code: "40P01"}), "CONFLICT", errors.ErrConflict},
		{"unmapped code", &pq.Error{Code: "42601"}, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPQError(tt.err)
			if tt.wantCode == "" {
				assert.Nil(t, got)
				assert.Equal(t, tt.err, Translate(tt.err))
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.ErrorIs(t, Translate(tt.err), tt.sentinel)
		})
	}

	assert.Nil(t, Translate(nil))
}
