package callback

import (
	"context"
	"sort"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/core/task"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/routing"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultTick      = 15 * time.Second
	defaultTickLimit = 50
)

// Dispatcher hands a claimed callback off to a new egress Call Session
// (§4.3 "hand off to a new Call Session in egress mode"). The
// scheduler package stays free of any session/media dependency; the
// wiring layer (internal/services/call) supplies the implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *domain.CallbackRequest, agentID string) error
}

// Scheduler runs the due-work tick loop described in §4.3. Multiple
// Scheduler instances (one per pod) may run concurrently; ClaimForDispatch's
// compare-and-set is what keeps at most one attempt per request in
// flight (§4.3 "Concurrency contract").
type Scheduler struct {
	svc        *Service
	routing    *routing.Engine
	dispatcher Dispatcher
	tasks      task.Bus

	tick      time.Duration
	tickLimit int
}

func NewScheduler(svc *Service, routingEngine *routing.Engine, dispatcher Dispatcher, tasks task.Bus) *Scheduler {
	return &Scheduler{
		svc:        svc,
		routing:    routingEngine,
		dispatcher: dispatcher,
		tasks:      tasks,
		tick:       defaultTick,
		tickLimit:  defaultTickLimit,
	}
}

// Run blocks, ticking until ctx is cancelled. Callers typically launch
// it with `go scheduler.Run(ctx)` from server bootstrap.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	logger.Base().Info("callback scheduler started", zap.Duration("tick", s.tick))

	for {
		select {
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now()); err != nil {
				logger.Base().Error("callback scheduler tick failed", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Base().Info("callback scheduler stopped")
			return
		}
	}
}

// HandleTask is the internal/core/task.Bus handler for
// TaskTypeCallbackDispatch — a force-evaluation nudge another pod can
// publish so this scheduler's next tick runs immediately instead of
// waiting out the timer. Nothing in this module publishes it.
func (s *Scheduler) HandleTask(t task.SessionTask) {
	if t.Type != task.TaskTypeCallbackDispatch {
		return
	}
	if err := s.Tick(context.Background(), time.Now()); err != nil {
		logger.Base().Error("callback scheduler forced tick failed", zap.Error(err))
	}
}

// Tick pulls due requests, orders them by priority score, and attempts
// to claim and dispatch each in turn (§4.3 "Due-work iterator").
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	due, err := s.svc.repos.Callback().ListDue(ctx, now, s.tickLimit)
	if err != nil {
		return err
	}

	sort.SliceStable(due, func(i, j int) bool {
		si, sj := due[i].PriorityScore(now), due[j].PriorityScore(now)
		if si != sj {
			return si > sj
		}
		return due[i].ScheduledTimeOrZero().Before(due[j].ScheduledTimeOrZero())
	})

	for _, req := range due {
		if err := s.dispatchOne(ctx, req, now); err != nil {
			logger.Base().Error("callback dispatch failed",
				zap.String("callback_request_id", req.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) dispatchOne(ctx context.Context, req *domain.CallbackRequest, now time.Time) error {
	if req.IsExpired(now) {
		return s.svc.repos.Callback().Update(ctx, expire(req))
	}

	claimed, err := s.svc.repos.Callback().ClaimForDispatch(ctx, req.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another worker already claimed it this tick.
		return nil
	}

	criteria := routing.Criteria{TenantID: req.TenantID, DepartmentID: req.DepartmentID}
	agentID, err := s.routing.ReserveBest(ctx, criteria, now)
	if err != nil {
		// No agent available this tick: release the claim back to its
		// prior dispatchable state so the next tick retries it.
		revert := revertStatus(req)
		if updErr := s.svc.repos.Callback().Update(ctx, revert); updErr != nil {
			return updErr
		}
		return nil
	}

	req.AgentID = agentID
	req.Status = domain.CallbackInProgress
	if err := s.svc.repos.Callback().Update(ctx, req); err != nil {
		return err
	}

	attempt := &domain.CallbackAttempt{
		CallbackRequestID: req.ID,
		Sequence:          req.Attempts + 1,
		AgentID:           agentID,
	}
	if err := s.svc.repos.Callback().RecordAttempt(ctx, attempt); err != nil {
		return err
	}

	if err := s.dispatcher.Dispatch(ctx, req, agentID); err != nil {
		logger.Base().Error("egress dispatch failed, reverting claim",
			zap.String("callback_request_id", req.ID), zap.Error(err))
		return s.svc.repos.Callback().Update(ctx, revertStatus(req))
	}
	return nil
}

func revertStatus(req *domain.CallbackRequest) *domain.CallbackRequest {
	if req.ScheduledTime != nil {
		req.Status = domain.CallbackScheduled
	} else {
		req.Status = domain.CallbackPending
	}
	req.AgentID = ""
	return req
}

func expire(req *domain.CallbackRequest) *domain.CallbackRequest {
	req.Status = domain.CallbackExpired
	return req
}

// CompleteAttempt applies the §4.3 outcome rules once an egress Call
// Session finishes its attempt on a dispatched callback.
func (s *Scheduler) CompleteAttempt(ctx context.Context, requestID string, outcome domain.AttemptOutcome, resolved bool, now time.Time) error {
	req, err := s.svc.repos.Callback().GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.CallbackInProgress {
		return apierr.New(apierr.Conflict, "callback request is not in progress")
	}

	if req.IsExpired(now) {
		return s.svc.repos.Callback().Update(ctx, expire(req))
	}

	switch {
	case outcome == domain.OutcomeConnected && resolved:
		req.Status = domain.CallbackCompleted
		req.Outcome = string(outcome)
	case outcome == domain.OutcomeConnected && !resolved:
		req.Status = domain.CallbackPending
		req.FollowUpRequired = true
		next := now.Add(domain.Backoff(req.Attempts + 1))
		req.NextAttemptAt = &next
	default:
		req.Attempts++
		if req.Attempts >= req.MaxAttempts {
			req.Status = domain.CallbackFailed
			req.Outcome = string(outcome)
		} else {
			req.Status = domain.CallbackPending
			next := now.Add(domain.Backoff(req.Attempts))
			req.NextAttemptAt = &next
		}
	}

	return s.svc.repos.Callback().Update(ctx, req)
}
