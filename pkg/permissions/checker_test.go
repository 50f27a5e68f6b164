package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		perms    []string
		required string
		want     bool
	}{
		{"empty requirement", nil, "", true},
		{"full access", []string{"*"}, BillingWaive, true},
		{"exact", []string{BillingWaive}, BillingWaive, true},
		{"resource wildcard", []string{"billing.*"}, BillingWaive, true},
		{"wildcard does not leak to sibling prefix", []string{"billing.*"}, "billingx.read", false},
		{"missing", []string{PatientsRead}, BillingWaive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.perms, tt.required))
		})
	}
}

func TestHasAnyPermission(t *testing.T) {
	assert.True(t, HasAnyPermission([]string{OrdersUpdate}, []string{OrdersCreate, OrdersUpdate}))
	assert.False(t, HasAnyPermission([]string{PatientsRead}, []string{OrdersCreate, OrdersUpdate}))
}

func TestMergePermissions(t *testing.T) {
	got := MergePermissions(
		DefaultRolePermissions["nurse"],
		DefaultRolePermissions["doctor"],
	)
	assert.Equal(t, []string{OrdersCreate, OrdersUpdate, PatientsRead, VisitsAdvance, VisitsRead}, got)
}

func TestIsValidPermission(t *testing.T) {
	assert.True(t, IsValidPermission("*"))
	assert.True(t, IsValidPermission(BillingWaive))
	assert.True(t, IsValidPermission("billing.*"))
	assert.False(t, IsValidPermission("billing"))
	assert.False(t, IsValidPermission("billing."))
}

func TestDefaultRolePermissions_CoverStaffRoles(t *testing.T) {
	for _, role := range []string{"admin", "receptionist", "nurse", "doctor", "cashier", "lab_technician", "radiologist", "pharmacist"} {
		perms, ok := DefaultRolePermissions[role]
		assert.True(t, ok, role)
		assert.True(t, HasPermission(perms, VisitsRead), role)
	}
	assert.False(t, HasPermission(DefaultRolePermissions["cashier"], BillingWaive))
}
