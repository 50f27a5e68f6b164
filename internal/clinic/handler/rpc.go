package handler

import (
	"net/http"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/pkg/httputil"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

// RPCHandler serves the procedure-style journey and payment endpoints
type RPCHandler struct {
	journey *service.JourneyService
	billing *service.BillingService
	logger  *logger.Logger
}

// NewRPCHandler creates a new RPC handler
func NewRPCHandler(journeySvc *service.JourneyService, billingSvc *service.BillingService, log *logger.Logger) *RPCHandler {
	return &RPCHandler{
		journey: journeySvc,
		billing: billingSvc,
		logger:  log,
	}
}

// RegisterPatientWithVisit registers a patient and opens a visit
func (h *RPCHandler) RegisterPatientWithVisit(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterPatientInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.journey.RegisterPatientWithVisit(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// AdvancePatientStage moves a visit to another stage
func (h *RPCHandler) AdvancePatientStage(w http.ResponseWriter, r *http.Request) {
	var req domain.AdvanceStageInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	visit, err := h.journey.AdvancePatientStage(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, visit)
}

// AppendJourneyStage annotates a visit's timeline
func (h *RPCHandler) AppendJourneyStage(w http.ResponseWriter, r *http.Request) {
	var req domain.AppendStageInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	visit, err := h.journey.AppendJourneyStage(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, visit)
}

// ApplyPaymentMethodAllocations settles a payment
func (h *RPCHandler) ApplyPaymentMethodAllocations(w http.ResponseWriter, r *http.Request) {
	var req domain.ApplyAllocationsInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.billing.ApplyPaymentMethodAllocations(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
