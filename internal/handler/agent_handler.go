package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/directory"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
)

// AgentHandler administers the Agent Directory (§4.2, §6).
type AgentHandler struct {
	agents repository.AgentRepository
	dir    *directory.Service
}

func NewAgentHandler(agents repository.AgentRepository, dir *directory.Service) *AgentHandler {
	return &AgentHandler{agents: agents, dir: dir}
}

func (h *AgentHandler) SetupAgentRoutes(router *mux.Router) {
	router.HandleFunc("/agents", h.CreateAgent).Methods("POST")
	router.HandleFunc("/agents/{id}", h.GetAgent).Methods("GET")
	router.HandleFunc("/agents/{id}/status", h.SetStatus).Methods("PUT")
	router.HandleFunc("/agents/available", h.ListAvailable).Methods("GET")
}

type createAgentRequest struct {
	TenantID      string            `json:"tenant_id" validate:"required"`
	DepartmentID  string            `json:"department_id"`
	Extension     string            `json:"extension" validate:"required"`
	Capacity      int               `json:"capacity" validate:"gte=1"`
	Skills        domain.StringSet  `json:"skills"`
	Languages     domain.StringSet  `json:"languages"`
	RoutingWeight int               `json:"routing_weight" validate:"gte=1"`
}

func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode create agent request", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "invalid create agent request", err))
		return
	}

	a := &domain.Agent{
		TenantID:      req.TenantID,
		DepartmentID:  req.DepartmentID,
		Extension:     req.Extension,
		Status:        domain.AgentOffline,
		Capacity:      req.Capacity,
		Skills:        req.Skills,
		Languages:     req.Languages,
		RoutingWeight: req.RoutingWeight,
	}
	if err := h.agents.Create(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.agents.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type setStatusRequest struct {
	Status domain.AgentStatus `json:"status" validate:"required"`
}

func (h *AgentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode set status request", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "invalid set status request", err))
		return
	}
	if err := h.dir.SetStatus(r.Context(), mux.Vars(r)["id"], req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AgentHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agents, err := h.agents.ListAvailable(r.Context(), q.Get("tenant_id"), q.Get("department_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}
