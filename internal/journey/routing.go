package journey

// RoutingStatus tracks a visit's relationship with the cashier
type RoutingStatus string

const (
	RoutingNone           RoutingStatus = "none"
	RoutingPendingPayment RoutingStatus = "pending_payment"
	RoutingPaymentCleared RoutingStatus = "payment_cleared"
)

// RoutingFor returns the routing status after a visit moves from one stage
// to another. Entering a paying stage puts the visit in the cashier queue,
// settling it clears it, and payment_cleared sticks until the next paying
// stage so the cashier history still shows it.
func RoutingFor(from, to Status, current RoutingStatus) RoutingStatus {
	switch {
	case to.IsPaying():
		return RoutingPendingPayment
	case to == StatusCancelled:
		if current == RoutingPaymentCleared {
			return current
		}
		return RoutingNone
	case from.IsPaying():
		return RoutingPaymentCleared
	case current == RoutingPaymentCleared:
		return current
	default:
		return RoutingNone
	}
}
