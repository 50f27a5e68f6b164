package migrations

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestEmbedded_OrderedAndComplete(t *testing.T) {
	migrations, err := Embedded()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "versions should be contiguous")
		assert.Len(t, m.Checksum, 64)
		assert.NotEmpty(t, m.SQL)
	}

	var all string
	for _, m := range migrations {
		all += m.SQL
	}
	for _, table := range []string{
		"tenants", "facilities", "users", "roles", "user_roles", "services", "patients",
		"visits", "patient_orders", "lab_orders", "imaging_orders", "medication_orders",
		"billing_items", "payments", "payment_line_items", "payment_method_allocations",
		"inventory_items", "stock_movements", "audit_logs",
	} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Contains(t, all, "payments_amount_paid_within_total")
	assert.Contains(t, all, "inventory_items_quantity_on_hand_non_negative")
}

func TestLoad_RejectsBadFilenames(t *testing.T) {
	tests := []struct {
		name string
		fs   fstest.MapFS
	}{
		{"no underscore", fstest.MapFS{"sql/0001.sql": {Data: []byte("SELECT 1")}}},
		{"non numeric", fstest.MapFS{"sql/abc_init.sql": {Data: []byte("SELECT 1")}}},
		{"duplicate", fstest.MapFS{
			"sql/0001_a.sql": {Data: []byte("SELECT 1")},
			"sql/01_b.sql":   {Data: []byte("SELECT 2")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.fs, "sql")
			assert.Error(t, err)
		})
	}
}

func TestLoad_SortsByVersionAndSkipsOtherFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0010_later.sql": {Data: []byte("SELECT 10")},
		"sql/0002_first.sql": {Data: []byte("SELECT 2")},
		"sql/README.md":      {Data: []byte("notes")},
	}

	migrations, err := Load(fsys, "sql")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, 10, migrations[1].Version)
}

func TestRunner_UpAppliesPending(t *testing.T) {
	db, mock := newMock(t)
	fsys := fstest.MapFS{
		"sql/0001_widgets.sql": {Data: []byte("CREATE TABLE widgets (id INT)")},
		"sql/0002_gadgets.sql": {Data: []byte("CREATE TABLE gadgets (id INT)")},
	}
	r, err := NewRunnerFromFS(db, logger.Nop(), fsys, "sql")
	require.NoError(t, err)
	first := r.Migrations()[0]
	second := r.Migrations()[1]

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(lockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, name, checksum, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "checksum", "applied_at"}).
			AddRow(1, "widgets", first.Checksum, time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE gadgets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(2, "gadgets", second.Checksum).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(lockKey).WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := r.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_UpRejectsChecksumDrift(t *testing.T) {
	db, mock := newMock(t)
	fsys := fstest.MapFS{"sql/0001_widgets.sql": {Data: []byte("CREATE TABLE widgets (id INT)")}}
	r, err := NewRunnerFromFS(db, logger.Nop(), fsys, "sql")
	require.NoError(t, err)

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, name, checksum, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "checksum", "applied_at"}).
			AddRow(1, "widgets", "edited", time.Now()))
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = r.Up(context.Background())
	require.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Contains(t, err.Error(), "version 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_UpNamesFailingFile(t *testing.T) {
	db, mock := newMock(t)
	fsys := fstest.MapFS{"sql/0001_broken.sql": {Data: []byte("CREATE TABLEX nope")}}
	r, err := NewRunnerFromFS(db, logger.Nop(), fsys, "sql")
	require.NoError(t, err)

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, name, checksum, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "checksum", "applied_at"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLEX nope").WillReturnError(assert.AnError)
	mock.ExpectRollback()
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := r.Up(context.Background())
	require.Error(t, err)
	assert.Empty(t, applied)
	assert.Contains(t, err.Error(), "0001_broken.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_Status(t *testing.T) {
	db, mock := newMock(t)
	fsys := fstest.MapFS{
		"sql/0001_widgets.sql": {Data: []byte("CREATE TABLE widgets (id INT)")},
		"sql/0002_gadgets.sql": {Data: []byte("CREATE TABLE gadgets (id INT)")},
	}
	r, err := NewRunnerFromFS(db, logger.Nop(), fsys, "sql")
	require.NoError(t, err)

	appliedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, name, checksum, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "checksum", "applied_at"}).
			AddRow(1, "widgets", r.Migrations()[0].Checksum, appliedAt))

	status, err := r.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	require.NotNil(t, status[0].AppliedAt)
	assert.Equal(t, appliedAt, *status[0].AppliedAt)
	assert.False(t, status[1].Applied)
	assert.Nil(t, status[1].AppliedAt)
}
