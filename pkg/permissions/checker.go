// Package permissions checks dotted permission strings with wildcard support.
//
// Permission Format:
//   - "*" - Full access
//   - "resource.*" - All actions on a resource (e.g., "billing.*")
//   - "resource.action" - Specific action (e.g., "billing.waive")
package permissions

import (
	"sort"
	"strings"
)

// Clinic permissions
const (
	PatientsRead     = "patients.read"
	PatientsWrite    = "patients.write"
	VisitsRead       = "visits.read"
	VisitsAdvance    = "visits.advance"
	OrdersCreate     = "orders.create"
	OrdersUpdate     = "orders.update"
	BillingRead      = "billing.read"
	BillingCollect   = "billing.collect"
	BillingWaive     = "billing.waive"
	InventoryRead    = "inventory.read"
	InventoryAdjust  = "inventory.adjust"
	PharmacyDispense = "pharmacy.dispense"
	AuditRead        = "audit.read"
)

// HasPermission checks if the user's permissions include the required permission.
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission checks if the user has any of the required permissions.
func HasAnyPermission(userPerms []string, required []string) bool {
	for _, req := range required {
		if HasPermission(userPerms, req) {
			return true
		}
	}
	return false
}

// MergePermissions merges permission sets from several roles, removing
// duplicates. The result is sorted.
func MergePermissions(sets ...[]string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, set := range sets {
		for _, p := range set {
			if !seen[p] {
				seen[p] = true
				result = append(result, p)
			}
		}
	}

	sort.Strings(result)
	return result
}

// DefaultRolePermissions are the permissions seeded for each staff role.
var DefaultRolePermissions = map[string][]string{
	"admin":          {"*"},
	"receptionist":   {PatientsRead, PatientsWrite, VisitsRead, VisitsAdvance, BillingRead},
	"nurse":          {PatientsRead, VisitsRead, VisitsAdvance},
	"doctor":         {PatientsRead, VisitsRead, VisitsAdvance, OrdersCreate, OrdersUpdate},
	"cashier":        {PatientsRead, VisitsRead, VisitsAdvance, BillingRead, BillingCollect},
	"lab_technician": {PatientsRead, VisitsRead, VisitsAdvance, OrdersUpdate},
	"radiologist":    {PatientsRead, VisitsRead, VisitsAdvance, OrdersUpdate},
	"pharmacist":     {PatientsRead, VisitsRead, VisitsAdvance, OrdersUpdate, InventoryRead, InventoryAdjust, PharmacyDispense},
}

// IsValidPermission accepts "*" or any resource.action string.
func IsValidPermission(perm string) bool {
	if perm == "*" {
		return true
	}
	parts := strings.Split(perm, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
	}
	return true
}
