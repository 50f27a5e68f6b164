package domain

import (
	"github.com/medflow/medflow-clinic/internal/journey"
)

// OrderKind selects one of the four order tables
type OrderKind string

const (
	OrderLab        OrderKind = "lab"
	OrderImaging    OrderKind = "imaging"
	OrderMedication OrderKind = "medication"
	OrderProcedure  OrderKind = "procedure"
)

// OrderKinds lists every kind
var OrderKinds = []OrderKind{OrderLab, OrderImaging, OrderMedication, OrderProcedure}

// ParseOrderKind validates a kind name
func ParseOrderKind(s string) (OrderKind, bool) {
	for _, k := range OrderKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Table is the table holding orders of this kind
func (k OrderKind) Table() string {
	switch k {
	case OrderLab:
		return "lab_orders"
	case OrderImaging:
		return "imaging_orders"
	case OrderMedication:
		return "medication_orders"
	default:
		return "patient_orders"
	}
}

// BillingSource is the billing_items.source_type for this kind
func (k OrderKind) BillingSource() string {
	switch k {
	case OrderLab:
		return "lab_order"
	case OrderImaging:
		return "imaging_order"
	case OrderMedication:
		return "medication_order"
	default:
		return "patient_order"
	}
}

// KindForBillingSource maps a billing source back to its order kind
func KindForBillingSource(source string) (OrderKind, bool) {
	for _, k := range OrderKinds {
		if k.BillingSource() == source {
			return k, true
		}
	}
	return "", false
}

// ServiceCategory is the catalog category orders of this kind must use
func (k OrderKind) ServiceCategory() string {
	switch k {
	case OrderLab:
		return CategoryLab
	case OrderImaging:
		return CategoryImaging
	case OrderMedication:
		return CategoryMedication
	default:
		return CategoryProcedure
	}
}

// WorkRoles are the roles that carry out orders of this kind
func (k OrderKind) WorkRoles() []journey.Role {
	switch k {
	case OrderLab:
		return []journey.Role{journey.RoleLabTechnician}
	case OrderImaging:
		return []journey.Role{journey.RoleRadiologist}
	case OrderMedication:
		return []journey.Role{journey.RolePharmacist}
	default:
		return []journey.Role{journey.RoleDoctor, journey.RoleNurse}
	}
}

var workMoves = map[string][]string{
	OrderStatusOrdered:    {OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusCancelled},
}

// CanMoveWork reports whether an order of this kind may go from one work
// status to another. Medication orders only leave "ordered" by being
// dispensed or cancelled.
func (k OrderKind) CanMoveWork(from, to string) bool {
	if k == OrderMedication {
		return from == OrderStatusOrdered && to == OrderStatusCancelled
	}
	for _, next := range workMoves[from] {
		if next == to {
			return true
		}
	}
	return false
}
