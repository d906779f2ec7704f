package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/services/call"
)

// SessionHandler exposes read-only visibility into the Call Sessions
// this pod is currently driving (§6 "operational visibility").
type SessionHandler struct {
	calls *call.Service
}

func NewSessionHandler(calls *call.Service) *SessionHandler {
	return &SessionHandler{calls: calls}
}

func (h *SessionHandler) SetupSessionRoutes(router *mux.Router) {
	router.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/sessions", h.CountSessions).Methods("GET")
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	o, ok := h.calls.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, apierr.New(apierr.NotFound, "session not found: "+mux.Vars(r)["id"]))
		return
	}
	writeJSON(w, http.StatusOK, o.Session())
}

func (h *SessionHandler) CountSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"active_sessions": h.calls.Count()})
}
