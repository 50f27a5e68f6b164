package service_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/events"
	"github.com/medflow/medflow-clinic/internal/clinic/repository"
	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/config"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/messaging"
	"github.com/medflow/medflow-clinic/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	s, err := testutil.NewIntegrationSuite(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration suite unavailable, skipping: %v\n", err)
	} else {
		suite = s
	}

	code := m.Run()

	if suite != nil {
		suite.Cleanup(ctx)
		testutil.TerminateContainer(ctx)
	}
	os.Exit(code)
}

// clinic is one tenant with staff of every role and wired services
type clinic struct {
	tenant    *testutil.TestTenant
	published *testutil.MockPublisher
	repos     *repository.Repositories

	journey   *service.JourneyService
	orders    *service.OrderService
	billing   *service.BillingService
	inventory *service.InventoryService
	audit     *service.AuditService

	reception, nurse, doctor, cashier, labTech, pharmacist, admin context.Context
}

func newClinic(t *testing.T) *clinic {
	t.Helper()
	testutil.SkipIfShort(t)
	if suite == nil {
		t.Skip("no database available")
	}

	ctx := context.Background()
	c := &clinic{
		tenant:    suite.SetupTenant(t, ctx, t.Name()),
		published: testutil.NewMockPublisher(),
		repos:     repository.New(suite.DB),
	}

	cfg := config.ClinicConfig{Currency: "KES", NationalIDMinDigits: 8, NationalIDMaxDigits: 12, CashierQueueLimit: 50}
	pub := events.NewWithPublisher(c.published, suite.Logger)

	c.journey = service.NewJourneyService(suite.DB, c.repos, pub, cfg, suite.Logger)
	c.orders = service.NewOrderService(suite.DB, c.repos, c.journey, pub, suite.Logger)
	c.billing = service.NewBillingService(suite.DB, c.repos, c.journey, pub, cfg, suite.Logger)
	c.inventory = service.NewInventoryService(suite.DB, c.repos, pub, suite.Logger)
	c.audit = service.NewAuditService(c.repos.Audit, suite.Logger)

	c.reception, _ = suite.Staff(t, ctx, c.tenant, "receptionist")
	c.nurse, _ = suite.Staff(t, ctx, c.tenant, "nurse")
	c.doctor, _ = suite.Staff(t, ctx, c.tenant, "doctor")
	c.cashier, _ = suite.Staff(t, ctx, c.tenant, "cashier")
	c.labTech, _ = suite.Staff(t, ctx, c.tenant, "lab_technician")
	c.pharmacist, _ = suite.Staff(t, ctx, c.tenant, "pharmacist")
	c.admin, _ = suite.Staff(t, ctx, c.tenant, "admin")
	return c
}

func (c *clinic) service(t *testing.T, category string, price int64) string {
	t.Helper()
	id, err := suite.Fixtures.Service(context.Background(), suite.RawDB, c.tenant, category, price)
	require.NoError(t, err)
	return id
}

func (c *clinic) register(t *testing.T, consultationID string, opts ...func(*domain.RegisterPatientInput)) *domain.RegistrationResult {
	t.Helper()
	res, err := c.journey.RegisterPatientWithVisit(c.reception, suite.Fixtures.Registration(consultationID, opts...))
	require.NoError(t, err)
	return res
}

func (c *clinic) advance(t *testing.T, ctx context.Context, visitID string, to journey.Status) *domain.Visit {
	t.Helper()
	v, err := c.journey.AdvancePatientStage(ctx, domain.AdvanceStageInput{VisitID: visitID, ToStatus: string(to)})
	require.NoError(t, err)
	require.Equal(t, to, v.Status)
	return v
}

// toDoctor walks a visit waiting at triage to the doctor
func (c *clinic) toDoctor(t *testing.T, visitID string) {
	t.Helper()
	c.advance(t, c.nurse, visitID, journey.StatusVitalsTaken)
	c.advance(t, c.nurse, visitID, journey.StatusWithDoctor)
}

// payAll collects every pending charge of a visit in cash
func (c *clinic) payAll(t *testing.T, visitID string) *domain.AllocationResult {
	t.Helper()
	p, err := c.billing.CreatePayment(c.cashier, domain.CreatePaymentInput{VisitID: visitID})
	require.NoError(t, err)

	res, err := c.billing.ApplyPaymentMethodAllocations(c.cashier, domain.ApplyAllocationsInput{
		PaymentID:   p.ID,
		Allocations: []domain.AllocationInput{{Method: domain.MethodCash, Amount: p.AmountDue}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPaid, res.Payment.Status)
	return res
}

func TestRegistration_CashVisitStartsAtCashier(t *testing.T) {
	c := newClinic(t)
	consult := c.service(t, domain.CategoryConsultation, 1500)

	res := c.register(t, consult)
	assert.Equal(t, journey.StatusPayingConsultation, res.Status)
	assert.Regexp(t, `^`+c.tenant.FacilityCode+`-\d{8}-0001$`, res.VisitNumber)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{messaging.EventVisitRegistered, messaging.EventVisitStatusChanged}, c.published.Types())

	items, err := c.billing.ListBillingItems(c.cashier, res.VisitID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.SourceConsultation, items[0].SourceType)
	assert.Equal(t, int64(1500), items[0].TotalAmount)
	assert.Equal(t, domain.PayStatusPending, items[0].Status)

	queue, err := c.billing.CashierQueue(c.cashier, "")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, res.VisitID, queue[0].VisitID)
	assert.Equal(t, int64(1500), queue[0].OutstandingDue)

	second := c.register(t, consult)
	assert.Regexp(t, `-0002$`, second.VisitNumber)
}

func TestRegistration_RoutesStraightToTriage(t *testing.T) {
	c := newClinic(t)

	insured := c.register(t, c.service(t, domain.CategoryConsultation, 1500), testutil.WithPaymentMode(domain.PaymentModeInsurance))
	assert.Equal(t, journey.StatusAtTriage, insured.Status)

	free := c.register(t, c.service(t, domain.CategoryConsultation, 0), testutil.WithoutPhone())
	assert.Equal(t, journey.StatusAtTriage, free.Status)
	assert.Contains(t, free.Warnings, service.WarnNoPhone)

	items, err := c.billing.ListBillingItems(c.cashier, free.VisitID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.PayStatusPaid, items[0].Status)
}

func TestRegistration_RejectsBadConsultationService(t *testing.T) {
	c := newClinic(t)
	lab := c.service(t, domain.CategoryLab, 800)

	for _, id := range []string{lab, "not-a-uuid", "6f1c2a8e-7d34-4b59-9a51-0c6a2f0e9b11"} {
		_, err := c.journey.RegisterPatientWithVisit(c.reception, suite.Fixtures.Registration(id))
		assert.ErrorIs(t, err, errors.ErrBadRequest, id)
	}
	c.published.AssertNoEventsPublished(t)
}

func TestRegistration_ReusesPatientByNationalID(t *testing.T) {
	c := newClinic(t)
	consult := c.service(t, domain.CategoryConsultation, 0)
	nationalID := suite.Fixtures.NationalID()

	first := c.register(t, consult, testutil.WithNationalID(nationalID))

	_, err := c.journey.RegisterPatientWithVisit(c.reception, suite.Fixtures.Registration(consult, testutil.WithNationalID(nationalID)))
	require.ErrorIs(t, err, errors.ErrConflict)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, first.VisitID, appErr.Details["visit_id"])

	c.advance(t, c.nurse, first.VisitID, journey.StatusCancelled)

	again := c.register(t, consult, testutil.WithNationalID(nationalID))
	assert.Equal(t, first.PatientID, again.PatientID)
	assert.NotEqual(t, first.VisitID, again.VisitID)
	assert.Contains(t, again.Warnings, service.WarnPatientReused)
}

func TestPayment_ClearsConsultationAndRoutesToTriage(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 1500))

	p, err := c.billing.CreatePayment(c.cashier, domain.CreatePaymentInput{VisitID: res.VisitID})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), p.TotalAmount)
	require.Len(t, p.LineItems, 1)

	_, err = c.billing.ApplyPaymentMethodAllocations(c.cashier, domain.ApplyAllocationsInput{
		PaymentID:   p.ID,
		Allocations: []domain.AllocationInput{{Method: domain.MethodCash, Amount: 2000}},
	})
	require.ErrorIs(t, err, errors.ErrBadRequest)

	partial, err := c.billing.ApplyPaymentMethodAllocations(c.cashier, domain.ApplyAllocationsInput{
		PaymentID:   p.ID,
		Allocations: []domain.AllocationInput{{Method: domain.MethodCash, Amount: 500}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPartial, partial.Payment.Status)
	assert.Equal(t, int64(1000), partial.Payment.AmountDue)
	assert.False(t, partial.Advanced)
	assert.Equal(t, journey.StatusPayingConsultation, partial.VisitStatus)

	c.published.Reset()
	done, err := c.billing.ApplyPaymentMethodAllocations(c.cashier, domain.ApplyAllocationsInput{
		PaymentID: p.ID,
		Allocations: []domain.AllocationInput{
			{Method: domain.MethodMobileMoney, Amount: 600, Reference: testutil.PtrString("MPESA-123")},
			{Method: domain.MethodCard, Amount: 400},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, done.Payment.Status)
	assert.Equal(t, int64(0), done.Payment.AmountDue)
	assert.True(t, done.Advanced)
	assert.Equal(t, journey.StatusAtTriage, done.VisitStatus)
	assert.Equal(t, []string{messaging.EventVisitStatusChanged, messaging.EventPaymentCompleted}, c.published.Types())

	v, err := c.repos.Visits.GetByID(c.cashier, res.VisitID)
	require.NoError(t, err)
	assert.Equal(t, journey.RoutingPaymentCleared, v.RoutingStatus)
	require.Len(t, v.Timeline, 3)
	assert.Equal(t, "payment cleared", v.Timeline[2].Notes)
	assert.NotNil(t, v.Timeline[1].ExitedAt)

	_, err = c.billing.ApplyPaymentMethodAllocations(c.cashier, domain.ApplyAllocationsInput{
		PaymentID:   p.ID,
		Allocations: []domain.AllocationInput{{Method: domain.MethodCash, Amount: 1}},
	})
	assert.ErrorIs(t, err, errors.ErrConflict)

	queue, err := c.billing.CashierQueue(c.cashier, "")
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestAdvance_OutstandingBalanceBlocksCashier(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 1500))

	_, err := c.journey.AdvancePatientStage(c.cashier, domain.AdvanceStageInput{
		VisitID:  res.VisitID,
		ToStatus: string(journey.StatusAtTriage),
	})
	require.ErrorIs(t, err, errors.ErrOutstandingBalance)

	_, err = c.journey.AdvancePatientStage(c.nurse, domain.AdvanceStageInput{
		VisitID:  res.VisitID,
		ToStatus: string(journey.StatusAtTriage),
	})
	require.ErrorIs(t, err, errors.ErrForbidden)

	_, err = c.journey.AdvancePatientStage(c.cashier, domain.AdvanceStageInput{
		VisitID:  res.VisitID,
		ToStatus: string(journey.StatusDischarged),
	})
	require.ErrorIs(t, err, errors.ErrInvalidTransition)

	v := c.advance(t, c.admin, res.VisitID, journey.StatusAtTriage)
	assert.Equal(t, journey.RoutingPaymentCleared, v.RoutingStatus)
}

func TestDiagnosisPayment_RoutesToLabFirst(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 0))
	c.toDoctor(t, res.VisitID)

	lab := c.service(t, domain.CategoryLab, 800)
	item, err := suite.Fixtures.InventoryItem(context.Background(), suite.RawDB, c.tenant, 50, 100)
	require.NoError(t, err)

	labOrder, labCharge, err := c.orders.CreateOrder(c.doctor, res.VisitID, domain.CreateOrderInput{Kind: domain.OrderLab, ServiceID: lab})
	require.NoError(t, err)
	assert.Equal(t, int64(800), labCharge.TotalAmount)
	assert.Equal(t, domain.PayStatusPending, labOrder.PaymentStatus)

	_, medCharge, err := c.orders.CreateOrder(c.doctor, res.VisitID, domain.CreateOrderInput{
		Kind:            domain.OrderMedication,
		InventoryItemID: item,
		Quantity:        10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), medCharge.TotalAmount)

	_, _, err = c.orders.CreateOrder(c.doctor, res.VisitID, domain.CreateOrderInput{Kind: domain.OrderImaging, ServiceID: lab})
	assert.ErrorIs(t, err, errors.ErrBadRequest)

	c.advance(t, c.doctor, res.VisitID, journey.StatusPayingDiagnosis)
	paid := c.payAll(t, res.VisitID)
	assert.Equal(t, int64(1300), paid.Payment.TotalAmount)
	assert.Equal(t, journey.StatusAtLab, paid.VisitStatus)

	orders, err := c.orders.ListOrders(c.labTech, res.VisitID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, domain.PayStatusPaid, o.PaymentStatus, o.Kind)
	}

	done, err := c.orders.UpdateOrderStatus(c.labTech, domain.OrderLab, labOrder.ID, domain.UpdateOrderStatusInput{
		Status:        domain.OrderStatusCompleted,
		ResultSummary: testutil.PtrString("Hb 13.1 g/dL"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, done.Status)

	_, err = c.orders.UpdateOrderStatus(c.labTech, domain.OrderLab, labOrder.ID, domain.UpdateOrderStatusInput{Status: domain.OrderStatusInProgress})
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)

	c.advance(t, c.labTech, res.VisitID, journey.StatusAtPharmacy)
}

func TestOrders_OnlyWhileWithDoctor(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 0))
	lab := c.service(t, domain.CategoryLab, 800)

	_, _, err := c.orders.CreateOrder(c.doctor, res.VisitID, domain.CreateOrderInput{Kind: domain.OrderLab, ServiceID: lab})
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestCancelOrder_ReleasesVisitFromCashier(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 0))
	c.toDoctor(t, res.VisitID)

	order, _, err := c.orders.CreateOrder(c.doctor, res.VisitID, domain.CreateOrderInput{
		Kind:      domain.OrderImaging,
		ServiceID: c.service(t, domain.CategoryImaging, 4000),
	})
	require.NoError(t, err)
	c.advance(t, c.doctor, res.VisitID, journey.StatusPayingDiagnosis)

	cancelled, err := c.orders.UpdateOrderStatus(c.doctor, domain.OrderImaging, order.ID, domain.UpdateOrderStatusInput{Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	v, err := c.repos.Visits.GetByID(c.doctor, res.VisitID)
	require.NoError(t, err)
	assert.Equal(t, journey.StatusWithDoctor, v.Status)

	items, err := c.billing.ListBillingItems(c.doctor, res.VisitID)
	require.NoError(t, err)
	for _, it := range items {
		if it.SourceID == order.ID {
			assert.Equal(t, domain.PayStatusCancelled, it.Status)
		}
	}
}

func TestWaive_LastChargeRoutesVisit(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 1500))

	items, err := c.billing.ListBillingItems(c.cashier, res.VisitID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	waived, err := c.billing.WaiveBillingItem(c.admin, items[0].ID, domain.WaiveInput{Reason: "hardship"})
	require.NoError(t, err)
	assert.Equal(t, domain.PayStatusWaived, waived.Status)
	c.published.AssertEventPublished(t, messaging.EventBillingItemWaived)

	v, err := c.repos.Visits.GetByID(c.cashier, res.VisitID)
	require.NoError(t, err)
	assert.Equal(t, journey.StatusAtTriage, v.Status)

	_, err = c.billing.WaiveBillingItem(c.admin, items[0].ID, domain.WaiveInput{Reason: "again"})
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestWaive_BlockedWhileInOpenPayment(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 1500))

	p, err := c.billing.CreatePayment(c.cashier, domain.CreatePaymentInput{VisitID: res.VisitID})
	require.NoError(t, err)

	_, err = c.billing.WaiveBillingItem(c.admin, p.LineItems[0].BillingItemID, domain.WaiveInput{Reason: "hardship"})
	assert.ErrorIs(t, err, errors.ErrConflict)

	_, err = c.billing.CreatePayment(c.cashier, domain.CreatePaymentInput{VisitID: res.VisitID})
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestDispense_InsufficientStock(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 0))
	c.toDoctor(t, res.VisitID)

	item, err := suite.Fixtures.InventoryItem(context.Background(), suite.RawDB, c.tenant, 20, 2)
	require.NoError(t, err)

	order, _, err := c.orders.CreateOrder(c.doctor, res.VisitID, domain.CreateOrderInput{
		Kind:            domain.OrderMedication,
		InventoryItemID: item,
		Quantity:        5,
		Dosage:          testutil.PtrString("1 tab tds"),
	})
	require.NoError(t, err)

	_, _, err = c.orders.DispenseMedication(c.pharmacist, order.ID)
	require.ErrorIs(t, err, errors.ErrConflict, "unpaid orders cannot be dispensed")

	c.advance(t, c.doctor, res.VisitID, journey.StatusPayingPharmacy)
	paid := c.payAll(t, res.VisitID)
	assert.Equal(t, journey.StatusAtPharmacy, paid.VisitStatus)

	_, _, err = c.orders.DispenseMedication(c.pharmacist, order.ID)
	require.ErrorIs(t, err, errors.ErrConflict)
	assert.Contains(t, err.Error(), "insufficient stock")

	_, err = c.inventory.AdjustStock(c.pharmacist, item, domain.AdjustStockInput{Delta: 10, Reason: domain.MovementReceipt})
	require.NoError(t, err)

	dispensed, movement, err := c.orders.DispenseMedication(c.pharmacist, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDispensed, dispensed.Status)
	assert.Equal(t, -5, movement.Delta)
	assert.Equal(t, 7, movement.QuantityAfter)
	c.published.AssertEventPublished(t, messaging.EventStockDispensed)

	_, _, err = c.orders.DispenseMedication(c.pharmacist, order.ID)
	assert.ErrorIs(t, err, errors.ErrConflict)

	movements, err := c.inventory.ListMovements(c.pharmacist, item, 10)
	require.NoError(t, err)
	require.Len(t, movements, 2)

	_, err = c.inventory.AdjustStock(c.pharmacist, item, domain.AdjustStockInput{Delta: -8, Reason: domain.MovementAdjustment})
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestCancelVisit_ReleasesCharges(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 1500))

	_, err := c.billing.CreatePayment(c.cashier, domain.CreatePaymentInput{VisitID: res.VisitID})
	require.NoError(t, err)

	v := c.advance(t, c.cashier, res.VisitID, journey.StatusCancelled)
	assert.NotNil(t, v.ClosedAt)
	assert.Equal(t, journey.RoutingNone, v.RoutingStatus)

	items, err := c.billing.ListBillingItems(c.cashier, res.VisitID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.PayStatusCancelled, items[0].Status)

	_, err = c.journey.AppendJourneyStage(c.nurse, domain.AppendStageInput{VisitID: res.VisitID, Stage: string(journey.StatusAtTriage)})
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
}

func TestAppendJourneyStage_KeepsStatus(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 0))

	v, err := c.journey.AppendJourneyStage(c.nurse, domain.AppendStageInput{
		VisitID: res.VisitID,
		Stage:   string(journey.StatusAtTriage),
		Notes:   "moved to triage room 2",
	})
	require.NoError(t, err)
	assert.Equal(t, journey.StatusAtTriage, v.Status)
	require.Len(t, v.Timeline, 3)
	assert.True(t, v.Timeline[2].Annotation)
	assert.Equal(t, "moved to triage room 2", v.Timeline[2].Notes)

	current := v.Timeline.Current()
	require.NotNil(t, current)
	assert.Equal(t, journey.StatusAtTriage, current.Stage)
	assert.False(t, current.Annotation)
	assert.Nil(t, current.ExitedAt)

	tl, err := c.journey.Timeline(c.nurse, res.VisitID)
	require.NoError(t, err)
	assert.Len(t, tl, 3)
}

func TestCashierQueue_AnnotationKeepsPlace(t *testing.T) {
	c := newClinic(t)
	consult := c.service(t, domain.CategoryConsultation, 1500)

	first := c.register(t, consult)
	second := c.register(t, consult)

	queued := func() []string {
		queue, err := c.billing.CashierQueue(c.cashier, "")
		require.NoError(t, err)
		ids := make([]string, 0, len(queue))
		for _, entry := range queue {
			ids = append(ids, entry.VisitID)
		}
		return ids
	}
	require.Equal(t, []string{first.VisitID, second.VisitID}, queued())

	v, err := c.journey.AppendJourneyStage(c.cashier, domain.AppendStageInput{
		VisitID: first.VisitID,
		Stage:   string(journey.StatusPayingConsultation),
		Notes:   "patient stepped out to fetch insurance card",
	})
	require.NoError(t, err)
	assert.Equal(t, journey.StatusPayingConsultation, v.Timeline.Current().Stage)
	assert.Nil(t, v.Timeline.Current().ExitedAt)

	assert.Equal(t, []string{first.VisitID, second.VisitID}, queued())
}

func TestVisitNumber_FacilityCodeMatchedLiterally(t *testing.T) {
	c := newClinic(t)
	consult := c.service(t, domain.CategoryConsultation, 0)

	facility := func(code string) string {
		id := uuid.New().String()
		_, err := suite.RawDB.Exec(`INSERT INTO facilities (id, tenant_id, name, code) VALUES ($1, $2, $3, $4)`,
			id, c.tenant.ID, "Clinic "+code, code)
		require.NoError(t, err)
		return id
	}
	plain := facility("QX1")
	underscored := facility("Q_1")

	at := func(facilityID string) func(*domain.RegisterPatientInput) {
		return func(in *domain.RegisterPatientInput) { in.FacilityID = facilityID }
	}

	assert.Regexp(t, `^QX1-\d{8}-0001$`, c.register(t, consult, at(plain)).VisitNumber)
	assert.Regexp(t, `^Q_1-\d{8}-0001$`, c.register(t, consult, at(underscored)).VisitNumber)
	assert.Regexp(t, `^QX1-\d{8}-0002$`, c.register(t, consult, at(plain)).VisitNumber)
}

func TestRegistration_BillingFailureKeepsVisit(t *testing.T) {
	c := newClinic(t)
	consult := c.service(t, domain.CategoryConsultation, 1500)

	// reject every billing item of this tenant while the constraint exists
	constraint := "billing_items_reject_" + strings.ReplaceAll(c.tenant.ID, "-", "")
	_, err := suite.RawDB.Exec(fmt.Sprintf(
		`ALTER TABLE billing_items ADD CONSTRAINT %s CHECK (tenant_id <> '%s') NOT VALID`, constraint, c.tenant.ID))
	require.NoError(t, err)
	t.Cleanup(func() {
		suite.RawDB.Exec(fmt.Sprintf(`ALTER TABLE billing_items DROP CONSTRAINT IF EXISTS %s`, constraint))
	})

	res := c.register(t, consult)
	assert.Contains(t, res.Warnings, service.WarnConsultationUnbilled)
	assert.Equal(t, journey.StatusAtTriage, res.Status)

	v, err := c.journey.GetVisit(c.nurse, res.VisitID)
	require.NoError(t, err)
	assert.Equal(t, journey.StatusAtTriage, v.Status)
	assert.Empty(t, v.BillingItems)

	registered, ok := c.published.Events()[0].Payload.(messaging.VisitRegisteredEvent)
	require.True(t, ok)
	assert.Contains(t, registered.Warnings, service.WarnConsultationUnbilled)
}

func TestPaymentTotals_EnforcedBySchema(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 1500))

	p, err := c.billing.CreatePayment(c.cashier, domain.CreatePaymentInput{VisitID: res.VisitID})
	require.NoError(t, err)

	_, err = suite.RawDB.Exec(`UPDATE payments SET amount_paid = 2000, amount_due = -500 WHERE id = $1`, p.ID)
	require.Error(t, err)
	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, pq.ErrorCode("23514"), pqErr.Code)
}

func TestAudit_RecordsEventOnce(t *testing.T) {
	c := newClinic(t)
	res := c.register(t, c.service(t, domain.CategoryConsultation, 0))

	event, err := messaging.BuildEvent(c.reception, messaging.EventVisitRegistered, events.Source,
		messaging.VisitRegisteredEvent{VisitID: res.VisitID, VisitNumber: res.VisitNumber})
	require.NoError(t, err)

	require.NoError(t, c.audit.Record(c.reception, event))
	require.NoError(t, c.audit.Record(c.reception, event))

	entries, total, err := c.audit.List(c.admin, "visit", res.VisitID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, messaging.EventVisitRegistered, entries[0].Action)
	assert.Equal(t, "receptionist", *entries[0].ActorRole)
}
