package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/callback"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

// CallbackHandler administers Callback Requests (§4.3, §6).
type CallbackHandler struct {
	callbacks *callback.Service
}

func NewCallbackHandler(callbacks *callback.Service) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks}
}

func (h *CallbackHandler) SetupCallbackRoutes(router *mux.Router) {
	router.HandleFunc("/callbacks", h.CreateCallback).Methods("POST")
	router.HandleFunc("/callbacks/{id}", h.GetCallback).Methods("GET")
	router.HandleFunc("/callbacks/{id}", h.CancelCallback).Methods("DELETE")
}

type createCallbackRequest struct {
	TenantID          string                     `json:"tenant_id" validate:"required"`
	CallerFingerprint string                     `json:"caller_fingerprint" validate:"required"`
	Name              string                     `json:"name"`
	Email             string                     `json:"email"`
	Reason            string                     `json:"reason"`
	Priority          domain.CallbackPriority    `json:"priority"`
	DepartmentID      string                     `json:"department_id"`
	Schedule          domain.BusinessHoursPolicy `json:"schedule" validate:"required"`
}

func (h *CallbackHandler) CreateCallback(w http.ResponseWriter, r *http.Request) {
	var req createCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode create callback request", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "invalid create callback request", err))
		return
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	cb := &domain.CallbackRequest{
		TenantID:          req.TenantID,
		CallerFingerprint: req.CallerFingerprint,
		Name:              req.Name,
		Email:             req.Email,
		Reason:            req.Reason,
		Priority:          priority,
		DepartmentID:      req.DepartmentID,
		MaxAttempts:       3,
	}
	created, err := h.callbacks.Create(r.Context(), cb, req.Schedule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *CallbackHandler) GetCallback(w http.ResponseWriter, r *http.Request) {
	cb, err := h.callbacks.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cb)
}

func (h *CallbackHandler) CancelCallback(w http.ResponseWriter, r *http.Request) {
	if err := h.callbacks.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "cancelled_at": time.Now().Format(time.RFC3339)})
}
