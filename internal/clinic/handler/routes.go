// Package handler exposes the clinic over HTTP under /api/v1/clinic.
package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/pkg/httputil"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/permissions"
)

// Services are the clinic services the routes dispatch to
type Services struct {
	Journey   *service.JourneyService
	Orders    *service.OrderService
	Billing   *service.BillingService
	Inventory *service.InventoryService
	Audit     *service.AuditService
}

// Mount registers the clinic routes on r. Callers install authentication
// beforehand; each route checks its own permission.
func Mount(r chi.Router, svc Services, log *logger.Logger) {
	rpc := NewRPCHandler(svc.Journey, svc.Billing, log)
	visits := NewVisitHandler(svc.Journey, svc.Orders, svc.Billing, log)
	orders := NewOrderHandler(svc.Orders, log)
	billing := NewBillingHandler(svc.Billing, log)
	inventory := NewInventoryHandler(svc.Inventory, log)
	audit := NewAuditHandler(svc.Audit, log)

	can := httputil.RequirePermission

	r.Route("/rpc", func(r chi.Router) {
		r.With(can(permissions.PatientsWrite)).Post("/register_patient_with_visit", rpc.RegisterPatientWithVisit)
		r.With(can(permissions.VisitsAdvance)).Post("/advance_patient_stage", rpc.AdvancePatientStage)
		r.With(can(permissions.VisitsAdvance)).Post("/append_journey_stage", rpc.AppendJourneyStage)
		r.With(can(permissions.BillingCollect)).Post("/apply_payment_method_allocations", rpc.ApplyPaymentMethodAllocations)
	})

	r.Route("/patients", func(r chi.Router) {
		r.Use(can(permissions.PatientsRead))
		r.Get("/", visits.SearchPatients)
		r.Get("/{id}", visits.GetPatient)
	})

	r.With(can(permissions.VisitsRead)).Get("/services", visits.ListServices)

	r.Route("/visits", func(r chi.Router) {
		r.With(can(permissions.VisitsRead)).Get("/", visits.ListVisits)
		r.Route("/{id}", func(r chi.Router) {
			r.With(can(permissions.VisitsRead)).Get("/", visits.GetVisit)
			r.With(can(permissions.VisitsRead)).Get("/timeline", visits.Timeline)
			r.With(can(permissions.VisitsRead)).Get("/orders", visits.ListOrders)
			r.With(can(permissions.OrdersCreate)).Post("/orders", visits.CreateOrder)
			r.With(can(permissions.BillingRead)).Get("/billing-items", visits.ListBillingItems)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.With(can(permissions.PharmacyDispense)).Post("/medication/{id}/dispense", orders.Dispense)
		r.With(can(permissions.OrdersUpdate)).Put("/{kind}/{id}/status", orders.UpdateStatus)
	})

	r.Route("/payments", func(r chi.Router) {
		r.With(can(permissions.BillingCollect)).Post("/", billing.CreatePayment)
		r.With(can(permissions.BillingRead)).Get("/{id}", billing.GetPayment)
	})
	r.With(can(permissions.BillingWaive)).Post("/billing-items/{id}/waive", billing.Waive)
	r.With(can(permissions.BillingRead)).Get("/cashier/queue", billing.CashierQueue)

	r.Route("/inventory/items", func(r chi.Router) {
		r.With(can(permissions.InventoryRead)).Get("/", inventory.List)
		r.With(can(permissions.InventoryAdjust)).Post("/", inventory.Create)
		r.With(can(permissions.InventoryAdjust)).Post("/{id}/adjust", inventory.Adjust)
		r.With(can(permissions.InventoryRead)).Get("/{id}/movements", inventory.Movements)
	})

	r.With(can(permissions.AuditRead)).Get("/audit", audit.List)
}
