// Package domain holds the clinic's persisted records and the inputs and
// results of its operations. Money is always integer minor units.
package domain

import (
	"encoding/json"
	"time"

	"github.com/medflow/medflow-clinic/internal/journey"
)

// Facility is a site belonging to a tenant
type Facility struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StaffMember is a row of users with its role permissions
type StaffMember struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	FacilityID  *string   `db:"facility_id" json:"facility_id,omitempty"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Role        string    `db:"role" json:"role"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	Permissions []string  `db:"-" json:"permissions"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// FullName returns "First Last"
func (s *StaffMember) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Service categories
const (
	CategoryConsultation = "consultation"
	CategoryLab          = "lab"
	CategoryImaging      = "imaging"
	CategoryProcedure    = "procedure"
	CategoryMedication   = "medication"
)

// Service is a billable catalog entry
type Service struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Price     int64     `db:"price" json:"price"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Patient is a registered person
type Patient struct {
	ID                  string     `db:"id" json:"id"`
	TenantID            string     `db:"tenant_id" json:"tenant_id"`
	FacilityID          string     `db:"facility_id" json:"facility_id"`
	MedicalRecordNumber string     `db:"medical_record_number" json:"medical_record_number"`
	FirstName           string     `db:"first_name" json:"first_name"`
	LastName            string     `db:"last_name" json:"last_name"`
	DateOfBirth         *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Sex                 *string    `db:"sex" json:"sex,omitempty"`
	Phone               *string    `db:"phone" json:"phone,omitempty"`
	NationalID          *string    `db:"national_id" json:"national_id,omitempty"`
	CreatedBy           *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "First Last"
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Payment modes
const (
	PaymentModeCash      = "cash"
	PaymentModeInsurance = "insurance"
)

// Visit is one trip of a patient through the clinic
type Visit struct {
	ID                    string                `db:"id" json:"id"`
	TenantID              string                `db:"tenant_id" json:"tenant_id"`
	FacilityID            string                `db:"facility_id" json:"facility_id"`
	PatientID             string                `db:"patient_id" json:"patient_id"`
	VisitNumber           string                `db:"visit_number" json:"visit_number"`
	Status                journey.Status        `db:"status" json:"status"`
	RoutingStatus         journey.RoutingStatus `db:"routing_status" json:"routing_status"`
	Timeline              journey.Timeline      `db:"journey_timeline" json:"journey_timeline"`
	ConsultationServiceID *string               `db:"consultation_service_id" json:"consultation_service_id,omitempty"`
	PaymentMode           string                `db:"payment_mode" json:"payment_mode"`
	Notes                 *string               `db:"notes" json:"notes,omitempty"`
	OpenedAt              time.Time             `db:"opened_at" json:"opened_at"`
	ClosedAt              *time.Time            `db:"closed_at" json:"closed_at,omitempty"`
	CreatedBy             *string               `db:"created_by" json:"created_by,omitempty"`
	CreatedAt             time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time             `db:"updated_at" json:"updated_at"`
}

// VisitSummary is a visit row joined with the patient's name
type VisitSummary struct {
	Visit
	PatientName string `db:"patient_name" json:"patient_name"`
}

// Order work statuses
const (
	OrderStatusOrdered    = "ordered"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusDispensed  = "dispensed"
	OrderStatusCancelled  = "cancelled"
)

// Payment statuses shared by orders and billing items
const (
	PayStatusPending   = "pending"
	PayStatusPaid      = "paid"
	PayStatusWaived    = "waived"
	PayStatusCancelled = "cancelled"
)

// Order is a clinical order of any kind. ServiceID is set for lab, imaging
// and procedure orders; InventoryItemID for medication orders.
type Order struct {
	ID              string     `db:"id" json:"id"`
	TenantID        string     `db:"tenant_id" json:"tenant_id"`
	VisitID         string     `db:"visit_id" json:"visit_id"`
	Kind            OrderKind  `db:"kind" json:"kind"`
	ServiceID       *string    `db:"service_id" json:"service_id,omitempty"`
	InventoryItemID *string    `db:"inventory_item_id" json:"inventory_item_id,omitempty"`
	OrderedBy       string     `db:"ordered_by" json:"ordered_by"`
	Quantity        int        `db:"quantity" json:"quantity"`
	UnitPrice       int64      `db:"unit_price" json:"unit_price"`
	Status          string     `db:"status" json:"status"`
	PaymentStatus   string     `db:"payment_status" json:"payment_status"`
	ResultSummary   *string    `db:"result_summary" json:"result_summary,omitempty"`
	Dosage          *string    `db:"dosage" json:"dosage,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	DispensedAt     *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	DispensedBy     *string    `db:"dispensed_by" json:"dispensed_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Total is quantity times unit price
func (o *Order) Total() int64 {
	return int64(o.Quantity) * o.UnitPrice
}

// Billing item sources
const (
	SourceConsultation = "consultation"
)

// BillingItem is one charge on a visit
type BillingItem struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	VisitID      string    `db:"visit_id" json:"visit_id"`
	SourceType   string    `db:"source_type" json:"source_type"`
	SourceID     string    `db:"source_id" json:"source_id"`
	Description  string    `db:"description" json:"description"`
	Quantity     int       `db:"quantity" json:"quantity"`
	UnitPrice    int64     `db:"unit_price" json:"unit_price"`
	TotalAmount  int64     `db:"total_amount" json:"total_amount"`
	Status       string    `db:"status" json:"status"`
	WaivedReason *string   `db:"waived_reason" json:"waived_reason,omitempty"`
	WaivedBy     *string   `db:"waived_by" json:"waived_by,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Payment statuses
const (
	PaymentPending   = "pending"
	PaymentPartial   = "partial"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"
)

// Payment bundles billing items for collection
type Payment struct {
	ID          string            `db:"id" json:"id"`
	TenantID    string            `db:"tenant_id" json:"tenant_id"`
	VisitID     string            `db:"visit_id" json:"visit_id"`
	TotalAmount int64             `db:"total_amount" json:"total_amount"`
	AmountPaid  int64             `db:"amount_paid" json:"amount_paid"`
	AmountDue   int64             `db:"amount_due" json:"amount_due"`
	Status      string            `db:"status" json:"status"`
	CashierID   string            `db:"cashier_id" json:"cashier_id"`
	PaidAt      *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
	LineItems   []PaymentLineItem `db:"-" json:"line_items"`
	Allocations []Allocation      `db:"-" json:"allocations"`
}

// IsOpen reports whether money can still be collected
func (p *Payment) IsOpen() bool {
	return p.Status == PaymentPending || p.Status == PaymentPartial
}

// PaymentLineItem links a payment to a billing item
type PaymentLineItem struct {
	ID            string `db:"id" json:"id"`
	PaymentID     string `db:"payment_id" json:"payment_id"`
	BillingItemID string `db:"billing_item_id" json:"billing_item_id"`
	Amount        int64  `db:"amount" json:"amount"`
}

// Payment methods
const (
	MethodCash         = "cash"
	MethodCard         = "card"
	MethodMobileMoney  = "mobile_money"
	MethodInsurance    = "insurance"
	MethodBankTransfer = "bank_transfer"
)

// PaymentMethods lists the accepted allocation methods
var PaymentMethods = []string{MethodCash, MethodCard, MethodMobileMoney, MethodInsurance, MethodBankTransfer}

// IsPaymentMethod reports whether m is an accepted method
func IsPaymentMethod(m string) bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

// Allocation records how part of a payment was settled
type Allocation struct {
	ID         string    `db:"id" json:"id"`
	PaymentID  string    `db:"payment_id" json:"payment_id"`
	Method     string    `db:"method" json:"method"`
	Amount     int64     `db:"amount" json:"amount"`
	Reference  *string   `db:"reference" json:"reference,omitempty"`
	ReceivedBy string    `db:"received_by" json:"received_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// CashierQueueEntry is a visit waiting at the cashier
type CashierQueueEntry struct {
	VisitID        string         `db:"visit_id" json:"visit_id"`
	VisitNumber    string         `db:"visit_number" json:"visit_number"`
	PatientID      string         `db:"patient_id" json:"patient_id"`
	PatientName    string         `db:"patient_name" json:"patient_name"`
	Status         journey.Status `db:"status" json:"status"`
	PaymentMode    string         `db:"payment_mode" json:"payment_mode"`
	PendingItems   int            `db:"pending_items" json:"pending_items"`
	OutstandingDue int64          `db:"outstanding_due" json:"outstanding_due"`
	WaitingSince   time.Time      `db:"waiting_since" json:"waiting_since"`
}

// InventoryItem is a stocked pharmacy item
type InventoryItem struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	FacilityID     string    `db:"facility_id" json:"facility_id"`
	SKU            string    `db:"sku" json:"sku"`
	Name           string    `db:"name" json:"name"`
	Unit           string    `db:"unit" json:"unit"`
	UnitPrice      int64     `db:"unit_price" json:"unit_price"`
	QuantityOnHand int       `db:"quantity_on_hand" json:"quantity_on_hand"`
	ReorderLevel   int       `db:"reorder_level" json:"reorder_level"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// LowStock reports whether the item is at or below its reorder level
func (i *InventoryItem) LowStock() bool {
	return i.QuantityOnHand <= i.ReorderLevel
}

// Stock movement reasons
const (
	MovementReceipt    = "receipt"
	MovementDispense   = "dispense"
	MovementAdjustment = "adjustment"
	MovementExpiry     = "expiry"
	MovementReturn     = "return"
)

// StockMovement is one ledger line for an inventory item
type StockMovement struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	ItemID        string    `db:"item_id" json:"item_id"`
	Delta         int       `db:"delta" json:"delta"`
	QuantityAfter int       `db:"quantity_after" json:"quantity_after"`
	Reason        string    `db:"reason" json:"reason"`
	ReferenceType *string   `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id,omitempty"`
	PerformedBy   string    `db:"performed_by" json:"performed_by"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AuditLog is a persisted audit trail entry
type AuditLog struct {
	ID           string          `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenant_id"`
	EventID      *string         `db:"event_id" json:"event_id,omitempty"`
	ActorID      *string         `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole    *string         `db:"actor_role" json:"actor_role,omitempty"`
	Action       string          `db:"action" json:"action"`
	ResourceType string          `db:"resource_type" json:"resource_type"`
	ResourceID   *string         `db:"resource_id" json:"resource_id,omitempty"`
	Details      json.RawMessage `db:"details" json:"details"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
