package domain

import (
	"time"

	"github.com/medflow/medflow-clinic/internal/journey"
)

// RegisterPatientInput opens a visit for a new or returning patient
type RegisterPatientInput struct {
	FacilityID            string  `json:"facility_id" validate:"omitempty,uuid"`
	FirstName             string  `json:"first_name" validate:"required,max=100"`
	LastName              string  `json:"last_name" validate:"required,max=100"`
	DateOfBirth           string  `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Sex                   string  `json:"sex" validate:"omitempty,oneof=female male other unknown"`
	Phone                 string  `json:"phone" validate:"omitempty,max=30"`
	NationalID            string  `json:"national_id" validate:"omitempty,national_id"`
	ConsultationServiceID string  `json:"consultation_service_id"`
	PaymentMode           string  `json:"payment_mode" validate:"omitempty,oneof=cash insurance"`
	Notes                 *string `json:"notes"`
}

// RegistrationResult is returned by registration
type RegistrationResult struct {
	PatientID   string         `json:"patient_id"`
	VisitID     string         `json:"visit_id"`
	VisitNumber string         `json:"visit_number"`
	FullName    string         `json:"full_name"`
	Status      journey.Status `json:"status"`
	Warnings    []string       `json:"warnings"`
}

// AdvanceStageInput moves a visit to another stage
type AdvanceStageInput struct {
	VisitID  string `json:"visit_id" validate:"required,uuid"`
	ToStatus string `json:"to_status" validate:"required"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// AppendStageInput annotates the timeline without a transition check
type AppendStageInput struct {
	VisitID string `json:"visit_id" validate:"required,uuid"`
	Stage   string `json:"stage" validate:"required"`
	Notes   string `json:"notes" validate:"max=2000"`
}

// CreateOrderInput places a clinical order
type CreateOrderInput struct {
	Kind            OrderKind `json:"kind" validate:"required,oneof=lab imaging medication procedure"`
	ServiceID       string    `json:"service_id" validate:"omitempty,uuid"`
	InventoryItemID string    `json:"inventory_item_id" validate:"omitempty,uuid"`
	Quantity        int       `json:"quantity" validate:"omitempty,gt=0,max=1000"`
	Dosage          *string   `json:"dosage"`
	Notes           *string   `json:"notes"`
}

// UpdateOrderStatusInput changes an order's work status
type UpdateOrderStatusInput struct {
	Status        string  `json:"status" validate:"required,oneof=in_progress completed cancelled"`
	ResultSummary *string `json:"result_summary"`
}

// CreatePaymentInput bundles billing items for collection
type CreatePaymentInput struct {
	VisitID        string   `json:"visit_id" validate:"required,uuid"`
	BillingItemIDs []string `json:"billing_item_ids" validate:"omitempty,dive,uuid"`
}

// AllocationInput is one settlement line
type AllocationInput struct {
	Method    string  `json:"method" validate:"required"`
	Amount    int64   `json:"amount"`
	Reference *string `json:"reference"`
}

// ApplyAllocationsInput settles all or part of a payment
type ApplyAllocationsInput struct {
	PaymentID   string            `json:"payment_id" validate:"required,uuid"`
	Allocations []AllocationInput `json:"allocations" validate:"required,min=1,dive"`
}

// AllocationResult reports the payment after allocations
type AllocationResult struct {
	Payment     *Payment       `json:"payment"`
	VisitStatus journey.Status `json:"visit_status"`
	Advanced    bool           `json:"visit_advanced"`
}

// WaiveInput waives a billing item
type WaiveInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CreateInventoryItemInput adds a stocked item
type CreateInventoryItemInput struct {
	FacilityID     string `json:"facility_id" validate:"omitempty,uuid"`
	SKU            string `json:"sku" validate:"required,max=60"`
	Name           string `json:"name" validate:"required,max=255"`
	Unit           string `json:"unit" validate:"omitempty,max=30"`
	UnitPrice      int64  `json:"unit_price" validate:"min=0"`
	QuantityOnHand int    `json:"quantity_on_hand" validate:"min=0"`
	ReorderLevel   int    `json:"reorder_level" validate:"min=0"`
}

// AdjustStockInput changes stock outside dispensing
type AdjustStockInput struct {
	Delta  int     `json:"delta" validate:"required"`
	Reason string  `json:"reason" validate:"required,oneof=receipt adjustment expiry return"`
	Notes  *string `json:"notes"`
}

// VisitFilter narrows visit listings
type VisitFilter struct {
	FacilityID string
	Status     journey.Status
	PatientID  string
	OpenOnly   bool
	Since      *time.Time
}
