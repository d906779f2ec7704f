package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/media"
	"github.com/xpload/voicecore-ai-sub002/internal/services/call"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
)

// CarrierWebhookHandler receives inbound call and in-call events from
// the telephony carrier and drives them into the Call Session
// Orchestrator through internal/services/call.Service (§6 "carrier
// webhook surface").
type CarrierWebhookHandler struct {
	calls         *call.Service
	bridge        *media.Bridge
	webhookSecret string
}

func NewCarrierWebhookHandler(calls *call.Service, bridge *media.Bridge, webhookSecret string) *CarrierWebhookHandler {
	return &CarrierWebhookHandler{calls: calls, bridge: bridge, webhookSecret: webhookSecret}
}

// SetupCarrierRoutes registers the webhook surface under /carrier,
// guarded end to end by HMAC signature verification.
func (h *CarrierWebhookHandler) SetupCarrierRoutes(router *mux.Router) {
	carrierRouter := router.PathPrefix("/carrier").Subrouter()
	carrierRouter.Use(h.verifySignatureMiddleware)

	carrierRouter.HandleFunc("/calls", h.handleNewCall).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/utterance", h.handleCallerUtterance).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/ai-token", h.handleAIToken).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/ai-error", h.handleAIProviderError).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/transfer", h.handleRequestTransfer).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/agent-accept", h.handleAgentAccept).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/agent-reject", h.handleAgentReject).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/hangup", h.handleCallerHangup).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/agent-hangup", h.handleAgentHangup).Methods("POST")
	carrierRouter.HandleFunc("/calls/{sessionId}/carrier-error", h.handleCarrierError).Methods("POST")

	logger.Base().Info("carrier webhook routes registered")
}

// verifySignatureMiddleware checks the carrier's HMAC-SHA256 request
// signature (teacher's X-Hub-Signature-256 pattern, §6). Skips
// verification when no secret is configured, matching the teacher's
// development fallback.
func (h *CarrierWebhookHandler) verifySignatureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, apierr.Wrap(apierr.Validation, "read request body", err))
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		if !h.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
			logger.Base().Warn("rejected carrier webhook: bad signature", zap.String("remote_addr", r.RemoteAddr))
			writeError(w, apierr.New(apierr.Auth, "invalid webhook signature"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *CarrierWebhookHandler) verifySignature(payload []byte, signature string) bool {
	if h.webhookSecret == "" {
		return true
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

type newCallRequest struct {
	SessionID         string `json:"session_id"`
	TenantID          string `json:"tenant_id"`
	CallerFingerprint string `json:"caller_fingerprint"`
	OfferSDP          string `json:"offer_sdp"`
}

// handleNewCall negotiates the carrier's SDP offer and opens a Call
// Session in one round trip (§4.1 "session.open").
func (h *CarrierWebhookHandler) handleNewCall(w http.ResponseWriter, r *http.Request) {
	var req newCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode new call request", err))
		return
	}
	if req.SessionID == "" || req.TenantID == "" || req.OfferSDP == "" {
		writeError(w, apierr.New(apierr.Validation, "session_id, tenant_id, and offer_sdp are required"))
		return
	}

	answerSDP, err := h.bridge.Answer(r.Context(), req.SessionID, req.OfferSDP)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.calls.OpenSession(r.Context(), req.SessionID, req.TenantID, req.CallerFingerprint); err != nil {
		h.bridge.Close(req.SessionID)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": req.SessionID, "answer_sdp": answerSDP})
}

type utteranceRequest struct {
	Text string `json:"text"`
}

func (h *CarrierWebhookHandler) handleCallerUtterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode utterance", err))
		return
	}
	if err := h.calls.CallerUtterance(r.Context(), mux.Vars(r)["sessionId"], req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type aiTokenRequest struct {
	Token         string `json:"token"`
	UtteranceEnd  bool   `json:"utterance_end"`
}

func (h *CarrierWebhookHandler) handleAIToken(w http.ResponseWriter, r *http.Request) {
	var req aiTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode ai token", err))
		return
	}
	if err := h.calls.AIToken(r.Context(), mux.Vars(r)["sessionId"], req.Token, req.UtteranceEnd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type aiErrorRequest struct {
	Message string `json:"message"`
}

func (h *CarrierWebhookHandler) handleAIProviderError(w http.ResponseWriter, r *http.Request) {
	var req aiErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode ai error", err))
		return
	}
	if err := h.calls.AIProviderError(r.Context(), mux.Vars(r)["sessionId"], apierr.New(apierr.UpstreamFailure, req.Message)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type transferRequest struct {
	Reason     string `json:"reason"`
	Department string `json:"department"`
}

func (h *CarrierWebhookHandler) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode transfer request", err))
		return
	}
	if err := h.calls.RequestTransfer(r.Context(), mux.Vars(r)["sessionId"], req.Reason, req.Department); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type agentActionRequest struct {
	AgentID string `json:"agent_id"`
}

func (h *CarrierWebhookHandler) handleAgentAccept(w http.ResponseWriter, r *http.Request) {
	var req agentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode agent accept", err))
		return
	}
	if err := h.calls.AgentAccept(r.Context(), mux.Vars(r)["sessionId"], req.AgentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CarrierWebhookHandler) handleAgentReject(w http.ResponseWriter, r *http.Request) {
	var req agentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode agent reject", err))
		return
	}
	if err := h.calls.AgentReject(r.Context(), mux.Vars(r)["sessionId"], req.AgentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CarrierWebhookHandler) handleCallerHangup(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	if err := h.calls.CallerHangup(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	h.bridge.Close(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CarrierWebhookHandler) handleAgentHangup(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	if err := h.calls.AgentHangup(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	h.bridge.Close(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type carrierErrorRequest struct {
	Message string `json:"message"`
}

func (h *CarrierWebhookHandler) handleCarrierError(w http.ResponseWriter, r *http.Request) {
	var req carrierErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "decode carrier error", err))
		return
	}
	sessionID := mux.Vars(r)["sessionId"]
	if err := h.calls.CarrierError(r.Context(), sessionID, apierr.New(apierr.UpstreamFailure, req.Message)); err != nil {
		writeError(w, err)
		return
	}
	h.bridge.Close(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
