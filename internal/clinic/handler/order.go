package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/httputil"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

// OrderHandler handles order work endpoints
type OrderHandler struct {
	orders *service.OrderService
	logger *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderSvc *service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orderSvc,
		logger: log,
	}
}

// UpdateStatus changes an order's work status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseOrderKind(chi.URLParam(r, "kind"))
	if !ok {
		httputil.Error(w, errors.NotFound("order kind"))
		return
	}

	var req domain.UpdateOrderStatusInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), kind, chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

type dispenseResponse struct {
	Order    *domain.Order         `json:"order"`
	Movement *domain.StockMovement `json:"stock_movement"`
}

// Dispense dispenses a medication order
func (h *OrderHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	order, movement, err := h.orders.DispenseMedication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dispenseResponse{Order: order, Movement: movement})
}
