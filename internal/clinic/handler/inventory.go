package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/pkg/httputil"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

// InventoryHandler handles pharmacy stock endpoints
type InventoryHandler struct {
	inventory *service.InventoryService
	logger    *logger.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(inventorySvc *service.InventoryService, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventorySvc,
		logger:    log,
	}
}

// List lists inventory items
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r, 20, 100)
	lowStock, _ := strconv.ParseBool(r.URL.Query().Get("low_stock"))

	items, total, err := h.inventory.ListItems(r.Context(), r.URL.Query().Get("facility_id"), lowStock, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, httputil.NewMeta(page, perPage, total))
}

// Create adds an inventory item
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateInventoryItemInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.inventory.CreateItem(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// Adjust books a manual stock movement
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req domain.AdjustStockInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.inventory.AdjustStock(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// Movements lists an item's stock ledger
func (h *InventoryHandler) Movements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	movements, err := h.inventory.ListMovements(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, movements)
}
