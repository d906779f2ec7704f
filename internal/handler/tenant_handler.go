package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
)

var validate = validator.New()

// TenantHandler administers Tenant and Department records (§3, §6).
type TenantHandler struct {
	tenants repository.TenantRepository
}

func NewTenantHandler(tenants repository.TenantRepository) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

func (h *TenantHandler) SetupTenantRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	router.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	router.HandleFunc("/tenants/{id}", h.GetTenant).Methods("GET")
	router.HandleFunc("/tenants/{id}", h.UpdateTenant).Methods("PUT")
	router.HandleFunc("/tenants/by-tenant-id/{tenantId}", h.GetTenantByTenantID).Methods("GET")
	router.HandleFunc("/tenants/{id}/departments", h.CreateDepartment).Methods("POST")
	router.HandleFunc("/tenants/{id}/departments", h.ListDepartments).Methods("GET")
}

type createTenantRequest struct {
	TenantID           string  `json:"tenant_id" validate:"required"`
	Name               string  `json:"name" validate:"required"`
	MonthlyMinuteQuota int64   `json:"monthly_minute_quota" validate:"required,gt=0"`
	CreditWarningPct   float64 `json:"credit_warning_pct" validate:"gte=0,lte=1"`
	MaxConcurrentCalls int     `json:"max_concurrent_calls" validate:"gte=0"`
	MaxTransferAttempts int    `json:"max_transfer_attempts" validate:"gte=0"`
}

func (h *TenantHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode create tenant request", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "invalid create tenant request", err))
		return
	}

	t := &domain.Tenant{
		TenantID:            req.TenantID,
		Name:                req.Name,
		Active:              true,
		MonthlyMinuteQuota:  req.MonthlyMinuteQuota,
		CreditWarningPct:    req.CreditWarningPct,
		MaxConcurrentCalls:  req.MaxConcurrentCalls,
		MaxTransferAttempts: req.MaxTransferAttempts,
		BillingCycleStart:   time.Now(),
	}
	if err := h.tenants.Create(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TenantHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) GetTenantByTenantID(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.GetByTenantID(r.Context(), mux.Vars(r)["tenantId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

type updateTenantRequest struct {
	Name                string  `json:"name,omitempty"`
	Active              *bool   `json:"active,omitempty"`
	MonthlyMinuteQuota  int64   `json:"monthly_minute_quota,omitempty"`
	CreditWarningPct    float64 `json:"credit_warning_pct,omitempty"`
	MaxConcurrentCalls  int     `json:"max_concurrent_calls,omitempty"`
	MaxTransferAttempts int     `json:"max_transfer_attempts,omitempty"`
}

func (h *TenantHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := h.tenants.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode update tenant request", err))
		return
	}
	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if req.MonthlyMinuteQuota != 0 {
		t.MonthlyMinuteQuota = req.MonthlyMinuteQuota
	}
	if req.CreditWarningPct != 0 {
		t.CreditWarningPct = req.CreditWarningPct
	}
	if req.MaxConcurrentCalls != 0 {
		t.MaxConcurrentCalls = req.MaxConcurrentCalls
	}
	if req.MaxTransferAttempts != 0 {
		t.MaxTransferAttempts = req.MaxTransferAttempts
	}

	if err := h.tenants.Update(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type createDepartmentRequest struct {
	Name           string `json:"name" validate:"required"`
	VoicemailBoxID string `json:"voicemail_box_id"`
}

func (h *TenantHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req createDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode create department request", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "invalid create department request", err))
		return
	}

	d := &domain.Department{
		TenantID:       mux.Vars(r)["id"],
		Name:           req.Name,
		VoicemailBoxID: req.VoicemailBoxID,
	}
	if err := h.tenants.CreateDepartment(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *TenantHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.tenants.ListDepartments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depts)
}
