// Package directory implements the Agent Directory half of §4.2:
// authoritative agent state plus the read-side snapshot the Routing
// Engine scores. There is a single instance per process, constructed
// explicitly and passed to its callers — no package-level singleton
// (§9 design note "no global singletons").
package directory

import (
	"context"
	"time"

	"github.com/jinzhu/copier"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
)

// Service is the authoritative, database-backed agent directory.
// Capacity bookkeeping (Reserve/Release) always hits the database
// directly — a capacity invariant cannot be served from a stale
// in-memory cache — so this type stays a thin wrapper rather than
// adding a read cache with no way to keep it correct under concurrent
// reservations.
type Service struct {
	repo repository.AgentRepository
}

func NewService(repo repository.AgentRepository) *Service {
	return &Service{repo: repo}
}

// SetStatus applies a status transition (§4.2 "set_status"). Any
// status may move to any other status; current-call bookkeeping is
// handled separately by Reserve/Release, which is why this call never
// touches current_calls itself.
func (s *Service) SetStatus(ctx context.Context, agentID string, newStatus domain.AgentStatus) error {
	return s.repo.SetStatus(ctx, agentID, newStatus)
}

// Reserve atomically claims one capacity slot (§4.2 "reserve"),
// failing softly (false, nil) when the agent is already at capacity
// so the Routing Engine can try the next candidate.
func (s *Service) Reserve(ctx context.Context, agentID string) (bool, error) {
	return s.repo.ReserveSlot(ctx, agentID)
}

// Release returns a capacity slot (§4.2 "release").
func (s *Service) Release(ctx context.Context, agentID string) error {
	return s.repo.ReleaseSlot(ctx, agentID)
}

// ListAvailable returns a snapshot of candidate agents satisfying
// tenant/department/skill/language/availability filters (§4.2
// "list_available"). The snapshot is deep-copied so the Routing
// Engine's scoring pass never observes a mutation mid-score (§9
// design note "pure functions over snapshots").
func (s *Service) ListAvailable(ctx context.Context, tenantID, departmentID string, requiredSkills domain.StringSet, requiredLanguages domain.StringSet, now time.Time) ([]*domain.Agent, error) {
	agents, err := s.repo.ListAvailable(ctx, tenantID, departmentID)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Agent, 0, len(agents))
	for _, a := range agents {
		if !a.IsAvailableNow(now) {
			continue
		}
		if !a.Skills.Contains(requiredSkills) {
			continue
		}
		if !a.Languages.Contains(requiredLanguages) {
			continue
		}
		out = append(out, snapshot(a))
	}
	return out, nil
}

// Get returns a single agent's current persisted state.
func (s *Service) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	a, err := s.repo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return snapshot(a), nil
}

func snapshot(a *domain.Agent) *domain.Agent {
	var cp domain.Agent
	if err := copier.CopyWithOption(&cp, a, copier.Option{DeepCopy: true}); err != nil {
		logger.Base().Error("agent snapshot copy failed, returning shared pointer", zap.Error(err))
		return a
	}
	return &cp
}
