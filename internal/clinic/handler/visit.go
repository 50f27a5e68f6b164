package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/httputil"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

// VisitHandler handles patient and visit endpoints
type VisitHandler struct {
	journey *service.JourneyService
	orders  *service.OrderService
	billing *service.BillingService
	logger  *logger.Logger
}

// NewVisitHandler creates a new visit handler
func NewVisitHandler(journeySvc *service.JourneyService, orderSvc *service.OrderService, billingSvc *service.BillingService, log *logger.Logger) *VisitHandler {
	return &VisitHandler{
		journey: journeySvc,
		orders:  orderSvc,
		billing: billingSvc,
		logger:  log,
	}
}

// SearchPatients searches patients
func (h *VisitHandler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r, 20, 100)

	patients, total, err := h.journey.SearchPatients(r.Context(), r.URL.Query().Get("search"), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, patients, httputil.NewMeta(page, perPage, total))
}

// GetPatient gets a patient by ID
func (h *VisitHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patient, err := h.journey.GetPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, patient)
}

// ListServices lists the service catalog
func (h *VisitHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.journey.ListServices(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, services)
}

// ListVisits lists visits
func (h *VisitHandler) ListVisits(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r, 20, 100)
	q := r.URL.Query()

	filter := domain.VisitFilter{
		FacilityID: q.Get("facility_id"),
		PatientID:  q.Get("patient_id"),
		OpenOnly:   q.Get("open") == "true",
	}
	if status := q.Get("status"); status != "" {
		parsed, err := journey.ParseStatus(status)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		filter.Status = parsed
	}

	visits, total, err := h.journey.ListVisits(r.Context(), filter, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, visits, httputil.NewMeta(page, perPage, total))
}

// GetVisit gets a visit with its orders and charges
func (h *VisitHandler) GetVisit(w http.ResponseWriter, r *http.Request) {
	visit, err := h.journey.GetVisit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, visit)
}

// Timeline returns a visit's journey timeline
func (h *VisitHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.journey.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, timeline)
}

type createOrderResponse struct {
	Order       *domain.Order       `json:"order"`
	BillingItem *domain.BillingItem `json:"billing_item"`
}

// CreateOrder places an order on a visit
func (h *VisitHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	order, item, err := h.orders.CreateOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, createOrderResponse{Order: order, BillingItem: item})
}

// ListOrders lists a visit's orders
func (h *VisitHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, orders)
}

// ListBillingItems lists a visit's charges
func (h *VisitHandler) ListBillingItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.billing.ListBillingItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}
