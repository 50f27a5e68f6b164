package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types, used as routing keys on the clinic exchange
const (
	EventVisitRegistered    = "visit.registered"
	EventVisitStatusChanged = "visit.status.changed"
	EventPaymentCompleted   = "payment.completed"
	EventOrderCreated       = "order.created"
	EventStockDispensed     = "stock.dispensed"
	EventBillingItemWaived  = "billing.item.waived"
	EventStockAdjusted      = "stock.adjusted"
)

// AllEventTypes lists every event the clinic service publishes
var AllEventTypes = []string{
	EventVisitRegistered,
	EventVisitStatusChanged,
	EventPaymentCompleted,
	EventOrderCreated,
	EventStockDispensed,
	EventBillingItemWaived,
	EventStockAdjusted,
}

// ExchangeClinicEvents is the default topic exchange
const ExchangeClinicEvents = "clinic.events"

// Event is the envelope for everything on the clinic exchange
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	TenantID      string          `json:"tenant_id"`
	ActorID       string          `json:"actor_id,omitempty"`
	ActorRole     string          `json:"actor_role,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// VisitRegisteredEvent is published when reception opens a visit
type VisitRegisteredEvent struct {
	VisitID       string   `json:"visit_id"`
	VisitNumber   string   `json:"visit_number"`
	PatientID     string   `json:"patient_id"`
	FacilityID    string   `json:"facility_id"`
	Status        string   `json:"status"`
	PaymentMode   string   `json:"payment_mode"`
	PatientReused bool     `json:"patient_reused"`
	Warnings      []string `json:"warnings,omitempty"`
}

// VisitStatusChangedEvent is published on every journey move
type VisitStatusChangedEvent struct {
	VisitID       string `json:"visit_id"`
	FacilityID    string `json:"facility_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	RoutingStatus string `json:"routing_status"`
	Automatic     bool   `json:"automatic"`
	Notes         string `json:"notes,omitempty"`
}

// PaymentCompletedEvent is published when a payment is fully settled
type PaymentCompletedEvent struct {
	PaymentID   string           `json:"payment_id"`
	VisitID     string           `json:"visit_id"`
	TotalAmount int64            `json:"total_amount"`
	Currency    string           `json:"currency"`
	Methods     map[string]int64 `json:"methods"`
	CashierID   string           `json:"cashier_id"`
}

// OrderCreatedEvent is published when a clinician places an order
type OrderCreatedEvent struct {
	OrderID       string `json:"order_id"`
	Kind          string `json:"kind"`
	VisitID       string `json:"visit_id"`
	BillingItemID string `json:"billing_item_id"`
	Quantity      int    `json:"quantity"`
	Amount        int64  `json:"amount"`
}

// StockDispensedEvent is published when pharmacy hands out medication
type StockDispensedEvent struct {
	OrderID     string `json:"order_id"`
	VisitID     string `json:"visit_id"`
	ItemID      string `json:"item_id"`
	Quantity    int    `json:"quantity"`
	NewQuantity int    `json:"new_quantity"`
}

// StockAdjustedEvent is published when stock is received or corrected
type StockAdjustedEvent struct {
	ItemID      string `json:"item_id"`
	Delta       int    `json:"delta"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
}

// BillingItemWaivedEvent is published when a charge is waived
type BillingItemWaivedEvent struct {
	BillingItemID string `json:"billing_item_id"`
	VisitID       string `json:"visit_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}
