package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/pkg/httputil"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

// BillingHandler handles payment, waiver and cashier endpoints
type BillingHandler struct {
	billing *service.BillingService
	logger  *logger.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billingSvc *service.BillingService, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingSvc,
		logger:  log,
	}
}

// CreatePayment bundles pending charges into a payment
func (h *BillingHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePaymentInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	payment, err := h.billing.CreatePayment(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, payment)
}

// GetPayment gets a payment
func (h *BillingHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.billing.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, payment)
}

// Waive waives a billing item
func (h *BillingHandler) Waive(w http.ResponseWriter, r *http.Request) {
	var req domain.WaiveInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.billing.WaiveBillingItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// CashierQueue lists visits waiting for payment
func (h *BillingHandler) CashierQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := h.billing.CashierQueue(r.Context(), r.URL.Query().Get("facility_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, queue)
}
