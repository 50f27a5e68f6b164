package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
)

// FixtureFactory builds unique clinic inputs and seeds catalog rows
type FixtureFactory struct {
	seq int
	mu  sync.Mutex
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

// NationalID returns a 10-digit national ID not used by earlier calls
func (f *FixtureFactory) NationalID() string {
	return fmt.Sprintf("90%08d", f.nextSeq())
}

// Registration builds a registration for a cash patient with a phone number
// and a fresh national ID.
func (f *FixtureFactory) Registration(consultationServiceID string, opts ...func(*domain.RegisterPatientInput)) domain.RegisterPatientInput {
	seq := f.nextSeq()
	in := domain.RegisterPatientInput{
		FirstName:             fmt.Sprintf("Amina%d", seq),
		LastName:              "Otieno",
		DateOfBirth:           "1990-04-12",
		Sex:                   "female",
		Phone:                 fmt.Sprintf("+25470000%04d", seq),
		NationalID:            fmt.Sprintf("80%08d", seq),
		ConsultationServiceID: consultationServiceID,
		PaymentMode:           domain.PaymentModeCash,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}

// WithNationalID sets the registration's national ID
func WithNationalID(id string) func(*domain.RegisterPatientInput) {
	return func(in *domain.RegisterPatientInput) {
		in.NationalID = id
	}
}

// WithPaymentMode sets cash or insurance
func WithPaymentMode(mode string) func(*domain.RegisterPatientInput) {
	return func(in *domain.RegisterPatientInput) {
		in.PaymentMode = mode
	}
}

// WithoutPhone clears the phone number
func WithoutPhone() func(*domain.RegisterPatientInput) {
	return func(in *domain.RegisterPatientInput) {
		in.Phone = ""
	}
}

// Service inserts a catalog service for the tenant and returns its ID
func (f *FixtureFactory) Service(ctx context.Context, db *sqlx.DB, t *TestTenant, category string, price int64) (string, error) {
	id := uuid.New().String()
	_, err := db.ExecContext(ctx, `
		INSERT INTO services (id, tenant_id, code, name, category, price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, t.ID, fmt.Sprintf("%s-%d", category, f.nextSeq()), "Test "+category, category, price)
	if err != nil {
		return "", fmt.Errorf("failed to seed %s service: %w", category, err)
	}
	return id, nil
}

// InventoryItem inserts a stocked item at the tenant's facility and returns
// its ID. The opening quantity is written directly, without a ledger entry.
func (f *FixtureFactory) InventoryItem(ctx context.Context, db *sqlx.DB, t *TestTenant, unitPrice int64, onHand int) (string, error) {
	id := uuid.New().String()
	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, tenant_id, facility_id, sku, name, unit_price, quantity_on_hand)
		VALUES ($1, $2, $3, $4, 'Test medication', $5, $6)
	`, id, t.ID, t.FacilityID, fmt.Sprintf("SKU-%d", f.nextSeq()), unitPrice, onHand)
	if err != nil {
		return "", fmt.Errorf("failed to seed inventory item: %w", err)
	}
	return id, nil
}
