// Package callback implements the Callback Scheduler of §4.3: durable,
// prioritized future work to return a caller's call, dispatched by a
// tick-driven worker that respects business hours and bounded retry.
package callback

import (
	"context"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/internal/routing"
)

const defaultMaxAdvanceDays = 14

// Service owns the callback_requests lifecycle: enqueue, cancel, and
// (via Scheduler) the due-work dispatch loop.
type Service struct {
	repos          repository.RepositoryManager
	routingEngine  *routing.Engine
	maxAdvanceDays int
}

func NewService(repos repository.RepositoryManager, routingEngine *routing.Engine) *Service {
	return &Service{repos: repos, routingEngine: routingEngine, maxAdvanceDays: defaultMaxAdvanceDays}
}

// Create enqueues a pending callback request (§4.3 "Enqueue"). If
// RequestedTime is set, it is remapped to the nearest slot inside
// [WindowStart, WindowEnd] using the tenant/department schedule; if no
// slot fits, the request is still created but left unscheduled
// (ScheduledTime nil) for the next tick to pick up against WindowEnd.
func (s *Service) Create(ctx context.Context, req *domain.CallbackRequest, schedule domain.BusinessHoursPolicy) (*domain.CallbackRequest, error) {
	if req.TenantID == "" {
		return nil, apierr.New(apierr.Validation, "tenant_id is required")
	}
	if req.WindowEnd.Before(req.WindowStart) {
		return nil, apierr.New(apierr.Validation, "window_end must not precede window_start")
	}

	req.Status = domain.CallbackPending
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = 3
	}

	if req.RequestedTime != nil {
		after := *req.RequestedTime
		if after.Before(req.WindowStart) {
			after = req.WindowStart
		}
		if slot, ok := nextAvailableSlot(schedule, after, s.maxAdvanceDays); ok && !slot.After(req.WindowEnd) {
			req.ScheduledTime = &slot
			req.Status = domain.CallbackScheduled
		}
	}

	if err := s.repos.Callback().Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Cancel enforces the §4.3 cancellation contract: noop unless the
// request is still pending or scheduled.
func (s *Service) Cancel(ctx context.Context, requestID string) error {
	return s.repos.Callback().Cancel(ctx, requestID)
}

func (s *Service) Get(ctx context.Context, requestID string) (*domain.CallbackRequest, error) {
	return s.repos.Callback().GetByID(ctx, requestID)
}

// GetNextAvailableSlot exposes the business-hours mapping (§4.3
// "get_next_available_slot") for callers outside the enqueue path,
// e.g. an admin preview endpoint.
func (s *Service) GetNextAvailableSlot(after time.Time, schedule domain.BusinessHoursPolicy) (time.Time, bool) {
	return nextAvailableSlot(schedule, after, s.maxAdvanceDays)
}
