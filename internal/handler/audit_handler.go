package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/audit"
)

// AuditHandler exposes the sanitized, tenant-scoped audit trail (§4.7, §6).
type AuditHandler struct {
	audit *audit.Service
}

func NewAuditHandler(auditSvc *audit.Service) *AuditHandler {
	return &AuditHandler{audit: auditSvc}
}

func (h *AuditHandler) SetupAuditRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenantId}/audit-events", h.ListEvents).Methods("GET")
}

func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apierr.New(apierr.Validation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	events, err := h.audit.ListByTenant(r.Context(), mux.Vars(r)["tenantId"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
