// Package session implements the Call Session Orchestrator of §4.1:
// a per-call finite state machine driven by external events (caller
// media, AI tokens, carrier notifications, agent actions), plus the
// cross-pod session registry (manager.go) used to broadcast cleanup.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/audit"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/event"
	"github.com/xpload/voicecore-ai-sub002/internal/ledger"
	"github.com/xpload/voicecore-ai-sub002/internal/routing"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
)

// Carrier is the outbound command surface the Orchestrator drives
// (§4.1 "Outputs"). The concrete media/telephony adapter lives outside
// this package; the FSM only knows it emitted a command.
type Carrier interface {
	Play(ctx context.Context, sessionID, utterance string) error
	Bridge(ctx context.Context, sessionID, agentEndpoint string) error
	Record(ctx context.Context, sessionID, voicemailBoxID string) (*domain.VoicemailRecord, error)
}

const cannedFallbackUtterance = "I'm having trouble understanding right now — let me connect you with someone who can help."

// Orchestrator owns one Session's lifecycle. One instance per call;
// callers (the wiring layer in internal/services/call) construct it
// per session.Open and discard it on terminal transition.
type Orchestrator struct {
	mu sync.Mutex

	sess     *domain.Session
	tenant   *domain.Tenant
	transfer *routing.TransferAttempt

	routingEngine *routing.Engine
	ledger        *ledger.Service
	audit         *audit.Service
	events        event.EventBus
	carrier       Carrier

	chargeStop chan struct{}
	chargeDone chan struct{}
}

// Open admits a new session (§4.1 "session.open"), failing with
// apierr.Quota if the tenant's remaining budget is already exhausted.
func Open(ctx context.Context, sessionID string, tenant *domain.Tenant, callerFingerprint string, routingEngine *routing.Engine, ledgerSvc *ledger.Service, auditSvc *audit.Service, events event.EventBus, carrier Carrier, now time.Time) (*Orchestrator, error) {
	if !tenant.Active {
		return nil, apierr.New(apierr.Auth, "tenant is not active")
	}

	decision, err := ledgerSvc.CheckBudget(ctx, tenant.TenantID, 1)
	if err != nil {
		return nil, err
	}
	if decision == domain.BudgetDeny {
		return nil, apierr.New(apierr.Quota, "tenant monthly minute quota exhausted")
	}

	o := &Orchestrator{
		sess:          domain.NewSession(sessionID, tenant.TenantID, callerFingerprint, now),
		tenant:        tenant,
		routingEngine: routingEngine,
		ledger:        ledgerSvc,
		audit:         auditSvc,
		events:        events,
		carrier:       carrier,
		chargeStop:    make(chan struct{}),
		chargeDone:    make(chan struct{}),
	}

	o.publish(event.SessionOpened, nil)
	if err := o.auditEvent(ctx, "session.opened", true, nil); err != nil {
		return nil, err
	}

	go o.accrueCharges()

	o.transition(domain.StateGreeting, now)
	_ = carrier.Play(ctx, sessionID, "greeting")
	return o, nil
}

// Session returns a read-only snapshot of the underlying session
// state; callers must not mutate the returned pointer's fields.
func (o *Orchestrator) Session() *domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}

// accrueCharges is the §4.1 "Charging" steady debit accumulator: one
// second of charge per wall-clock second while the session is open.
func (o *Orchestrator) accrueCharges() {
	defer close(o.chargeDone)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.mu.Lock()
			o.sess.ChargeSeconds++
			o.mu.Unlock()
		case <-o.chargeStop:
			return
		}
	}
}

// CallerUtterance appends caller speech to the current turn,
// triggering barge-in if an AI utterance is in flight (§4.1 "AI turn
// loop semantics").
func (o *Orchestrator) CallerUtterance(ctx context.Context, text string, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess.State == domain.StateTerminated {
		return apierr.New(apierr.Conflict, "session is terminated")
	}

	if o.currentTurnIsAI() {
		o.cancelCurrentTurnLocked(now)
		o.publish(event.AITurnCancelled, nil)
	}

	o.sess.Turns = append(o.sess.Turns, domain.Turn{Speaker: "caller", Text: text, StartedAt: now})
	if o.sess.State == domain.StateWaitingCaller || o.sess.State == domain.StateGreeting {
		o.setStateLocked(domain.StateAITurn, now)
	}
	return nil
}

// AIToken streams AI output; utteranceEnd closes the current ai_turn
// and moves the session to waiting_caller (§4.1 "session.ai_token").
func (o *Orchestrator) AIToken(ctx context.Context, token string, utteranceEnd bool, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess.State == domain.StateTerminated {
		return apierr.New(apierr.Conflict, "session is terminated")
	}

	if !o.currentTurnIsAI() {
		o.sess.Turns = append(o.sess.Turns, domain.Turn{Speaker: "ai", Text: "", StartedAt: now})
		o.sess.AIAttemptCount++
		o.publish(event.AITurnStarted, nil)

		if o.sess.State == domain.StateAITurn && o.sess.AIAttemptCount > o.tenant.MaxTransferAttempts {
			o.setStateLocked(domain.StateClassifying, now)
			o.forceRoutingLocked(ctx, "ai_attempts_exhausted", now)
			return nil
		}
	}

	idx := len(o.sess.Turns) - 1
	o.sess.Turns[idx].Text += token

	if utteranceEnd {
		o.sess.Turns[idx].EndedAt = now
		o.publish(event.AITurnEnded, nil)
		o.setStateLocked(domain.StateWaitingCaller, now)
	}
	return nil
}

// RequestTransfer is the AI-driven escalation path (§4.1
// "session.request_transfer").
func (o *Orchestrator) RequestTransfer(ctx context.Context, reason, department string, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess.State == domain.StateTerminated {
		return apierr.New(apierr.Conflict, "session is terminated")
	}
	o.sess.DepartmentHint = department
	o.setStateLocked(domain.StateClassifying, now)
	o.forceRoutingLocked(ctx, reason, now)
	return nil
}

// forceRoutingLocked moves the session into routing and offers the
// best available agent. Caller must hold o.mu.
func (o *Orchestrator) forceRoutingLocked(ctx context.Context, reason string, now time.Time) {
	o.setStateLocked(domain.StateRouting, now)
	o.publish(event.TransferRequested, &event.RoutingEventData{
		SessionID: o.sess.ID, TenantID: o.sess.TenantID, DepartmentID: o.sess.DepartmentHint, Reason: reason,
	})

	o.transfer = routing.NewTransferAttempt(o.routingEngine, routing.Criteria{
		TenantID:     o.sess.TenantID,
		DepartmentID: o.sess.DepartmentHint,
	}, o.tenant.MaxTransferAttempts)

	agentID, err := o.transfer.Offer(ctx, now)
	if err != nil {
		o.publish(event.NoAgentAvailable, &event.RoutingEventData{SessionID: o.sess.ID, TenantID: o.sess.TenantID})
		o.fallbackLocked(ctx, now)
		return
	}

	o.sess.AssignedAgentID = agentID
	o.publish(event.AgentOffered, &event.RoutingEventData{SessionID: o.sess.ID, TenantID: o.sess.TenantID, AgentID: agentID})
}

// fallbackLocked applies the routing-timeout fallback of §4.1: per
// tenant policy (feature flag), land in voicemail or callback_capture.
func (o *Orchestrator) fallbackLocked(ctx context.Context, now time.Time) {
	if o.tenant.FeatureFlags != nil {
		if v, ok := o.tenant.FeatureFlags["callback_on_no_agent"].(bool); ok && v {
			o.setStateLocked(domain.StateCallbackCapture, now)
			return
		}
	}
	o.setStateLocked(domain.StateVoicemail, now)
	vm, err := o.carrier.Record(ctx, o.sess.ID, o.sess.DepartmentHint)
	if err != nil {
		logger.Base().Error("voicemail recording failed to start",
			zap.String("session_id", o.sess.ID), zap.Error(err))
		return
	}
	o.sess.Voicemail = vm
}

// AgentAccept resolves an outstanding offer in the agent's favor,
// bridging the call (§4.1 "session.agent_accept").
func (o *Orchestrator) AgentAccept(ctx context.Context, agentID string, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.transfer == nil || o.sess.State != domain.StateRouting {
		return apierr.New(apierr.Conflict, "no outstanding transfer to accept")
	}
	if err := o.transfer.Resolve(ctx, routing.OfferAccepted); err != nil {
		return err
	}

	o.setStateLocked(domain.StateBridged, now)
	o.publish(event.AgentAccepted, &event.RoutingEventData{SessionID: o.sess.ID, TenantID: o.sess.TenantID, AgentID: agentID})
	return o.carrier.Bridge(ctx, o.sess.ID, agentID)
}

// AgentReject resolves an outstanding offer in the agent's refusal,
// offering the next candidate or falling back to voicemail/callback
// once attempts are exhausted (§4.1 "session.agent_reject").
func (o *Orchestrator) AgentReject(ctx context.Context, agentID string, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.transfer == nil || o.sess.State != domain.StateRouting {
		return apierr.New(apierr.Conflict, "no outstanding transfer to reject")
	}
	if err := o.transfer.Resolve(ctx, routing.OfferRejected); err != nil {
		return err
	}
	o.publish(event.AgentRejected, &event.RoutingEventData{SessionID: o.sess.ID, TenantID: o.sess.TenantID, AgentID: agentID})

	if o.transfer.Exhausted() {
		o.fallbackLocked(ctx, now)
		return nil
	}

	next, err := o.transfer.Offer(ctx, now)
	if err != nil {
		o.fallbackLocked(ctx, now)
		return nil
	}
	o.sess.AssignedAgentID = next
	o.publish(event.AgentOffered, &event.RoutingEventData{SessionID: o.sess.ID, TenantID: o.sess.TenantID, AgentID: next})
	return nil
}

// BridgeReserved bridges the session directly to an agent a caller
// already reserved through the Routing Engine (the Callback
// Scheduler's dispatch path, §4.3 "hand off to a new egress Call
// Session"), skipping the normal offer/accept round-trip since there
// is no agent to ask — the bridge either succeeds or the session is
// torn down as a failed attempt.
func (o *Orchestrator) BridgeReserved(ctx context.Context, agentID string, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess.State == domain.StateTerminated {
		return apierr.New(apierr.Conflict, "session is terminated")
	}

	o.sess.AssignedAgentID = agentID
	o.setStateLocked(domain.StateRouting, now)
	o.publish(event.AgentOffered, &event.RoutingEventData{SessionID: o.sess.ID, TenantID: o.sess.TenantID, AgentID: agentID})
	o.setStateLocked(domain.StateBridged, now)
	o.publish(event.AgentAccepted, &event.RoutingEventData{SessionID: o.sess.ID, TenantID: o.sess.TenantID, AgentID: agentID})
	return o.carrier.Bridge(ctx, o.sess.ID, agentID)
}

// CallerHangup, AgentHangup, and CarrierError are the terminal inputs
// of §4.1 "session.caller_hangup | session.agent_hangup | session.carrier_error".
func (o *Orchestrator) CallerHangup(ctx context.Context, now time.Time) error {
	return o.terminate(ctx, domain.OutcomeCallerHangup, now)
}

func (o *Orchestrator) AgentHangup(ctx context.Context, now time.Time) error {
	return o.terminate(ctx, domain.OutcomeAgentHangup, now)
}

func (o *Orchestrator) CarrierError(ctx context.Context, err error, now time.Time) error {
	logger.Base().Error("carrier error during session", zap.String("session_id", o.sess.ID), zap.Error(err))
	return o.terminate(ctx, domain.OutcomeCarrierFailure, now)
}

// AIProviderError applies §4.1 "Failure semantics": a provider error
// during ai_turn is not fatal — it degrades to a canned fallback
// utterance and forces classifying → routing.
func (o *Orchestrator) AIProviderError(ctx context.Context, err error, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess.State == domain.StateTerminated {
		return nil
	}
	logger.Base().Error("AI provider error, falling back", zap.String("session_id", o.sess.ID), zap.Error(err))

	_ = o.carrier.Play(ctx, o.sess.ID, cannedFallbackUtterance)
	o.setStateLocked(domain.StateClassifying, now)
	o.forceRoutingLocked(ctx, "ai_provider_error", now)
	return nil
}

// CheckTimeout expires the session if it has exceeded the wall-clock
// timeout for its current state (§4.1 "Each state has a wall-clock
// timeout; expiry transitions to terminated with outcome timeout").
func (o *Orchestrator) CheckTimeout(ctx context.Context, timeout time.Duration, now time.Time) error {
	o.mu.Lock()
	expired := o.sess.State != domain.StateTerminated && now.Sub(o.sess.LastStateChangeAt) > timeout
	o.mu.Unlock()
	if !expired {
		return nil
	}
	return o.terminate(ctx, domain.OutcomeTimeout, now)
}

// terminate drives the session to its absorbing terminated state,
// stops the charge accumulator, then records the final debit and the
// terminal audit event as two separate writes, not one transaction
// (§4.1 "Charging"): a ledger rejection
// (e.g. tenant deactivated mid-call) never tears the call down a
// second time, it only marks the debit best-effort for reconciliation.
func (o *Orchestrator) terminate(ctx context.Context, outcome domain.TerminalOutcome, now time.Time) error {
	o.mu.Lock()
	if o.sess.State == domain.StateTerminated {
		o.mu.Unlock()
		return nil
	}
	wasVoicemail := o.sess.State == domain.StateVoicemail
	o.sess.Outcome = outcome
	o.setStateLocked(domain.StateTerminated, now)
	seconds := o.sess.ChargeSecondsRounded()
	sessionID := o.sess.ID
	tenantID := o.sess.TenantID
	if wasVoicemail && o.sess.Voicemail != nil {
		o.sess.Voicemail.DurationS = int(now.Sub(o.sess.Voicemail.RecordedAt).Round(time.Second).Seconds())
	}
	voicemail := o.sess.Voicemail
	o.mu.Unlock()

	close(o.chargeStop)
	<-o.chargeDone

	committed, err := o.ledger.Debit(ctx, tenantID, seconds, sessionID)
	if err != nil || !committed {
		logger.Base().Error("terminal debit did not commit, recording best effort",
			zap.String("session_id", sessionID), zap.Error(err))
		if beErr := o.ledger.DebitBestEffort(ctx, tenantID, seconds, sessionID); beErr != nil {
			logger.Base().Error("best-effort terminal accounting failed", zap.Error(beErr))
		}
	}

	payload := map[string]interface{}{
		"outcome":        string(outcome),
		"charge_seconds": seconds,
	}
	if voicemail != nil {
		payload["voicemail"] = map[string]interface{}{
			"box_id":           voicemail.BoxID,
			"duration_seconds": voicemail.DurationS,
			"storage_uri":      voicemail.StorageURI,
			"transcript":       voicemail.Transcript,
		}
	}
	if err := o.auditEvent(ctx, "session.terminated", true, payload); err != nil {
		return err
	}
	o.publish(event.SessionTerminated, nil)
	return nil
}

func (o *Orchestrator) currentTurnIsAI() bool {
	if len(o.sess.Turns) == 0 {
		return false
	}
	last := o.sess.Turns[len(o.sess.Turns)-1]
	return last.Speaker == "ai" && last.EndedAt.IsZero()
}

func (o *Orchestrator) cancelCurrentTurnLocked(now time.Time) {
	idx := len(o.sess.Turns) - 1
	o.sess.Turns[idx].Cancelled = true
	o.sess.Turns[idx].EndedAt = now
}

func (o *Orchestrator) setStateLocked(s domain.SessionState, now time.Time) {
	o.sess.State = s
	o.sess.LastStateChangeAt = now
}

// transition is setStateLocked's unlocked counterpart for call sites
// (Open) that already hold no lock yet (construction-time only).
func (o *Orchestrator) transition(s domain.SessionState, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStateLocked(s, now)
}

func (o *Orchestrator) publish(t event.EventType, data interface{}) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(t, data); err != nil {
		logger.Base().Error("failed to publish session event", zap.String("type", string(t)), zap.Error(err))
	}
}

// auditEvent records an audit write, only propagating a failure to the
// caller when it is apierr.Privacy — a sanitizer rejection is fatal in
// the originating request and must never be silently suppressed (§7
// "Propagation"). Any other error kind (e.g. a transient store failure)
// is logged but does not fail the session operation that triggered it.
func (o *Orchestrator) auditEvent(ctx context.Context, eventType string, success bool, payload map[string]interface{}) error {
	if o.audit == nil {
		return nil
	}
	err := o.audit.Record(ctx, o.sess.TenantID, eventType, o.sess.CallerFingerprint, o.sess.ID, payload, success)
	if err == nil {
		return nil
	}
	logger.Base().Error("failed to record audit event", zap.String("event_type", eventType), zap.Error(err))
	if apierr.KindOf(err) == apierr.Privacy {
		return err
	}
	return nil
}
