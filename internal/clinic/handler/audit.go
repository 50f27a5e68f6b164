package handler

import (
	"net/http"

	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/pkg/httputil"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

// AuditHandler serves the audit trail
type AuditHandler struct {
	audit  *service.AuditService
	logger *logger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditSvc *service.AuditService, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  auditSvc,
		logger: log,
	}
}

// List lists audit entries
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r, 50, 200)
	q := r.URL.Query()

	entries, total, err := h.audit.List(r.Context(), q.Get("resource_type"), q.Get("resource_id"), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, httputil.NewMeta(page, perPage, total))
}
