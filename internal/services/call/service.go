// Package call wires the Agent Directory, Routing Engine, Ledger,
// Audit log, and cross-pod session registry into a single per-call
// lifecycle manager, mirroring the teacher's WhatsAppCallService
// "service owns a connection registry" shape but driving the
// Call Session Orchestrator's FSM (§4.1) instead of a WebRTC peer
// connection.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/audit"
	coresession "github.com/xpload/voicecore-ai-sub002/internal/core/session"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/event"
	"github.com/xpload/voicecore-ai-sub002/internal/ledger"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/internal/routing"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
)

// Service is the process-wide registry of live Call Sessions. One
// instance per pod, constructed explicitly by cmd/server (Design Note
// "no global singletons").
type Service struct {
	repos   repository.RepositoryManager
	routing *routing.Engine
	ledger  *ledger.Service
	audit   *audit.Service
	events  event.EventBus
	carrier coresession.Carrier

	sessionManager *coresession.Manager

	mu       sync.RWMutex
	sessions map[string]*coresession.Orchestrator
}

func NewService(repos repository.RepositoryManager, routingEngine *routing.Engine, ledgerSvc *ledger.Service, auditSvc *audit.Service, events event.EventBus, carrier coresession.Carrier, sessionManager *coresession.Manager) *Service {
	s := &Service{
		repos:          repos,
		routing:        routingEngine,
		ledger:         ledgerSvc,
		audit:          auditSvc,
		events:         events,
		carrier:        carrier,
		sessionManager: sessionManager,
		sessions:       make(map[string]*coresession.Orchestrator),
	}

	if sessionManager != nil {
		if err := sessionManager.SubscribeToCleanup(context.Background(), func(sessionID string) {
			s.forget(sessionID)
		}); err != nil {
			logger.Base().Error("failed to subscribe to cleanup broadcasts", zap.Error(err))
		}
	}
	return s
}

// OpenSession admits a new ingress call (§4.1 "session.open").
func (s *Service) OpenSession(ctx context.Context, sessionID, tenantID, callerFingerprint string) (*coresession.Orchestrator, error) {
	tenant, err := s.repos.Tenant().GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	o, err := coresession.Open(ctx, sessionID, tenant, callerFingerprint, s.routing, s.ledger, s.audit, s.events, s.carrier, time.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sessionID] = o
	s.mu.Unlock()

	if s.sessionManager != nil {
		if err := s.sessionManager.Register(ctx, coresession.SessionInfo{
			SessionID: sessionID, ChannelType: "voice", StartTime: time.Now(),
		}); err != nil {
			logger.Base().Error("failed to register session", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return o, nil
}

// Get returns the live Orchestrator for sessionID, if this pod owns it.
func (s *Service) Get(sessionID string) (*coresession.Orchestrator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.sessions[sessionID]
	return o, ok
}

// Count returns the number of sessions this pod is currently driving
// — the Autoscaling Controller's ConcurrencyProvider input (§4.4).
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CountForTenant returns how many of this pod's live sessions belong
// to tenantID — the per-tenant half of the Autoscaling Controller's
// ConcurrencyProvider input (§4.4 "current_concurrent_calls").
func (s *Service) CountForTenant(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.sessions {
		if o.Session().TenantID == tenantID {
			n++
		}
	}
	return n
}

// Close forgets a session locally and broadcasts cleanup to every
// other pod tracking it (teacher's NotifyCleanup/SubscribeToCleanup
// cross-pod pattern).
func (s *Service) Close(ctx context.Context, sessionID string) {
	s.forget(sessionID)
	if s.sessionManager == nil {
		return
	}
	if err := s.sessionManager.Unregister(ctx, sessionID); err != nil {
		logger.Base().Error("failed to unregister session", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.sessionManager.NotifyCleanup(ctx, sessionID); err != nil {
		logger.Base().Error("failed to broadcast session cleanup", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *Service) lookup(sessionID string) (*coresession.Orchestrator, error) {
	o, ok := s.Get(sessionID)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "session not found: "+sessionID)
	}
	return o, nil
}

// CallerUtterance, AIToken, RequestTransfer, AgentAccept, AgentReject,
// CallerHangup, AgentHangup, and CarrierError are thin dispatch
// wrappers: look up the session this pod owns and forward the event
// to its Orchestrator, closing the registry entry on any terminal
// transition (the carrier/admin webhook handlers are the only
// callers — §6).

func (s *Service) CallerUtterance(ctx context.Context, sessionID, text string) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return o.CallerUtterance(ctx, text, time.Now())
}

func (s *Service) AIToken(ctx context.Context, sessionID, token string, utteranceEnd bool) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return o.AIToken(ctx, token, utteranceEnd, time.Now())
}

func (s *Service) AIProviderError(ctx context.Context, sessionID string, cause error) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return o.AIProviderError(ctx, cause, time.Now())
}

func (s *Service) RequestTransfer(ctx context.Context, sessionID, reason, department string) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return o.RequestTransfer(ctx, reason, department, time.Now())
}

func (s *Service) AgentAccept(ctx context.Context, sessionID, agentID string) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return o.AgentAccept(ctx, agentID, time.Now())
}

func (s *Service) AgentReject(ctx context.Context, sessionID, agentID string) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return o.AgentReject(ctx, agentID, time.Now())
}

func (s *Service) CallerHangup(ctx context.Context, sessionID string) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	if err := o.CallerHangup(ctx, time.Now()); err != nil {
		return err
	}
	s.Close(ctx, sessionID)
	return nil
}

func (s *Service) AgentHangup(ctx context.Context, sessionID string) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	if err := o.AgentHangup(ctx, time.Now()); err != nil {
		return err
	}
	s.Close(ctx, sessionID)
	return nil
}

func (s *Service) CarrierError(ctx context.Context, sessionID string, cause error) error {
	o, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	if err := o.CarrierError(ctx, cause, time.Now()); err != nil {
		return err
	}
	s.Close(ctx, sessionID)
	return nil
}

// CleanupExpired sweeps every session this pod owns for its per-state
// wall-clock timeout (§4.1 "Each state has a wall-clock timeout"),
// terminating and forgetting any that have overstayed it.
func (s *Service) CleanupExpired(ctx context.Context, timeout time.Duration) int {
	s.mu.RLock()
	snapshot := make(map[string]*coresession.Orchestrator, len(s.sessions))
	for id, o := range s.sessions {
		snapshot[id] = o
	}
	s.mu.RUnlock()

	cleaned := 0
	now := time.Now()
	for id, o := range snapshot {
		if err := o.CheckTimeout(ctx, timeout, now); err != nil {
			logger.Base().Error("session timeout check failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if o.Session().State == domain.StateTerminated {
			s.Close(ctx, id)
			cleaned++
		}
	}
	return cleaned
}

// StartCleanupRoutine runs CleanupExpired on a ticker until ctx is
// cancelled (teacher's StartCleanupRoutine shape).
func (s *Service) StartCleanupRoutine(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Base().Info("call session cleanup routine started", zap.Duration("interval", interval), zap.Duration("timeout", timeout))
	for {
		select {
		case <-ticker.C:
			if n := s.CleanupExpired(ctx, timeout); n > 0 {
				logger.Base().Info("cleaned up expired sessions", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch implements internal/callback.Dispatcher: it opens a new
// egress Call Session for a claimed callback request and bridges it
// directly to the agent the scheduler already reserved through the
// Routing Engine (§4.3 "hand off to a new egress Call Session").
//
// The caller's phone number is intentionally not threaded through
// here: CallerFingerprint is the only caller identifier the platform
// retains (§4.7 privacy sanitization), and resolving it to a dialable
// destination is the carrier adapter's concern, not this service's.
func (s *Service) Dispatch(ctx context.Context, req *domain.CallbackRequest, agentID string) error {
	tenant, err := s.repos.Tenant().GetByTenantID(ctx, req.TenantID)
	if err != nil {
		return err
	}

	sessionID := "callback-" + req.ID
	o, err := coresession.Open(ctx, sessionID, tenant, req.CallerFingerprint, s.routing, s.ledger, s.audit, s.events, s.carrier, time.Now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[sessionID] = o
	s.mu.Unlock()

	if err := o.BridgeReserved(ctx, agentID, time.Now()); err != nil {
		s.forget(sessionID)
		return err
	}
	return nil
}
