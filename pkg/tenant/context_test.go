package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantContext(t *testing.T) {
	_, err := TenantID(context.Background())
	assert.ErrorIs(t, err, ErrNoTenantInContext)
	assert.Empty(t, FacilityID(context.Background()))

	ctx := WithTenantContext(context.Background(), "t-1", "f-1")
	id, err := TenantID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-1", id)
	assert.Equal(t, "f-1", FacilityID(ctx))

	_, err = TenantID(WithTenantID(context.Background(), ""))
	assert.ErrorIs(t, err, ErrNoTenantInContext)
}
