package repository

import (
	"context"
	"errors"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"gorm.io/gorm"
)

// AgentRepository persists Agent directory records (§3, §4.2). Slot
// reservation is done with a conditional UPDATE (compare-and-set)
// rather than read-then-write, so the capacity invariant
// (0 <= current_calls <= capacity) holds under concurrent offers.
type AgentRepository interface {
	Create(ctx context.Context, a *domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	ListAvailable(ctx context.Context, tenantID, departmentID string) ([]*domain.Agent, error)
	SetStatus(ctx context.Context, id string, status domain.AgentStatus) error
	ReserveSlot(ctx context.Context, id string) (bool, error)
	ReleaseSlot(ctx context.Context, id string) error
	Update(ctx context.Context, a *domain.Agent) error
}

type GormAgentRepository struct {
	db *gorm.DB
}

func NewGormAgentRepository(db *gorm.DB) *GormAgentRepository {
	return &GormAgentRepository{db: db}
}

func (r *GormAgentRepository) Create(ctx context.Context, a *domain.Agent) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "create agent", err)
	}
	return nil
}

func (r *GormAgentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	var a domain.Agent
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(apierr.NotFound, "agent not found: "+id)
		}
		return nil, apierr.Wrap(apierr.InternalInvariant, "get agent", err)
	}
	return &a, nil
}

// ListAvailable returns candidate agents for routing: status
// available, current_calls < capacity, optionally scoped to a
// department. Business-hours and skill filtering happen in
// internal/routing over this snapshot (§9 "pure functions over
// snapshots" design note).
func (r *GormAgentRepository) ListAvailable(ctx context.Context, tenantID, departmentID string) ([]*domain.Agent, error) {
	var agents []*domain.Agent
	q := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", domain.AgentAvailable).
		Where("current_calls < capacity")
	if departmentID != "" {
		q = q.Where("department_id = ?", departmentID)
	}
	if err := q.Find(&agents).Error; err != nil {
		return nil, apierr.Wrap(apierr.InternalInvariant, "list available agents", err)
	}
	return agents, nil
}

func (r *GormAgentRepository) SetStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Agent{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return apierr.Wrap(apierr.InternalInvariant, "set agent status", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.New(apierr.NotFound, "agent not found: "+id)
	}
	return nil
}

// ReserveSlot atomically increments current_calls iff it remains
// below capacity, returning false (no error) when the agent is
// already at capacity — the caller (routing engine) treats this as
// "try the next candidate", not a failure (§8 "Agent capacity race").
// The status flip to busy happens in the same UPDATE as the
// current-call increment (§4.2 "status change is only atomic in
// tandem with current-call adjustment").
func (r *GormAgentRepository) ReserveSlot(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE agents SET current_calls = current_calls + 1, last_call_at = now(), status = ?
		 WHERE id = ? AND current_calls < capacity AND status = ?`,
		domain.AgentBusy, id, domain.AgentAvailable,
	)
	if res.Error != nil {
		return false, apierr.Wrap(apierr.InternalInvariant, "reserve agent slot", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseSlot atomically decrements current_calls, floored at zero,
// and flips status back to available in the same UPDATE once capacity
// frees up — but only out of busy, so an agent who went away/offline
// mid-call stays away/offline instead of being reopened for routing.
func (r *GormAgentRepository) ReleaseSlot(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE agents SET
		   current_calls = GREATEST(current_calls - 1, 0),
		   status = CASE WHEN status = ? AND current_calls - 1 < capacity THEN ? ELSE status END
		 WHERE id = ?`,
		domain.AgentBusy, domain.AgentAvailable, id,
	)
	if res.Error != nil {
		return apierr.Wrap(apierr.InternalInvariant, "release agent slot", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.New(apierr.NotFound, "agent not found")
	}
	return nil
}

func (r *GormAgentRepository) Update(ctx context.Context, a *domain.Agent) error {
	if err := r.db.WithContext(ctx).Save(a).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "update agent", err)
	}
	return nil
}
