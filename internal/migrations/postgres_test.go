package migrations_test

import (
	"context"
	"testing"
	"time"

	"github.com/medflow/medflow-clinic/internal/migrations"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_AgainstPostgres(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx, _ := testutil.ContextWithTimeout(t, 3*time.Minute)

	container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	db, err := container.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r, err := migrations.NewRunner(db, logger.Nop())
	require.NoError(t, err)

	applied, err := r.Up(ctx)
	require.NoError(t, err)
	require.Len(t, applied, len(r.Migrations()))

	again, err := r.Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	status, err := r.Status(ctx)
	require.NoError(t, err)
	for _, s := range status {
		assert.True(t, s.Applied, "%04d_%s", s.Version, s.Name)
	}

	var secured []string
	require.NoError(t, db.SelectContext(ctx, &secured, `
		SELECT relname FROM pg_class
		WHERE relname IN ('visits', 'billing_items', 'payments') AND relrowsecurity
		ORDER BY relname
	`))
	assert.Equal(t, []string{"billing_items", "payments", "visits"}, secured)
}
