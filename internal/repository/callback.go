package repository

import (
	"context"
	"errors"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"gorm.io/gorm"
)

// CallbackRepository persists CallbackRequest/CallbackAttempt records
// and implements the due-work query the Scheduler's tick loop polls (§4.3).
type CallbackRepository interface {
	Create(ctx context.Context, c *domain.CallbackRequest) error
	GetByID(ctx context.Context, id string) (*domain.CallbackRequest, error)
	Update(ctx context.Context, c *domain.CallbackRequest) error
	Cancel(ctx context.Context, id string) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.CallbackRequest, error)
	ClaimForDispatch(ctx context.Context, id string) (bool, error)
	RecordAttempt(ctx context.Context, a *domain.CallbackAttempt) error
}

type GormCallbackRepository struct {
	db *gorm.DB
}

func NewGormCallbackRepository(db *gorm.DB) *GormCallbackRepository {
	return &GormCallbackRepository{db: db}
}

func (r *GormCallbackRepository) Create(ctx context.Context, c *domain.CallbackRequest) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "create callback request", err)
	}
	return nil
}

func (r *GormCallbackRepository) GetByID(ctx context.Context, id string) (*domain.CallbackRequest, error) {
	var c domain.CallbackRequest
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(apierr.NotFound, "callback request not found: "+id)
		}
		return nil, apierr.Wrap(apierr.InternalInvariant, "get callback request", err)
	}
	return &c, nil
}

func (r *GormCallbackRepository) Update(ctx context.Context, c *domain.CallbackRequest) error {
	if err := r.db.WithContext(ctx).Save(c).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "update callback request", err)
	}
	return nil
}

// Cancel enforces the status DAG's one legal exit from a non-terminal
// state (§8 "Callback monotonicity") — a callback already InProgress,
// Completed, Failed, or Expired cannot be cancelled.
func (r *GormCallbackRepository) Cancel(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.CallbackRequest{}).
		Where("id = ? AND status IN ?", id, []domain.CallbackStatus{
			domain.CallbackPending, domain.CallbackScheduled,
		}).
		Update("status", domain.CallbackCancelled)
	if res.Error != nil {
		return apierr.Wrap(apierr.InternalInvariant, "cancel callback request", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.New(apierr.Conflict, "callback request cannot be cancelled from its current status")
	}
	return nil
}

// ListDue returns candidate callback requests per the §4.3 selector:
// status in {scheduled, pending} AND (scheduled_time <= now OR
// next_attempt_at <= now), ordered by scheduled time ascending so the
// caller can apply the priority-score ordering (which needs the
// attempt count and overdue bit, computed in Go) on top. Returning
// candidates here does not claim them — ClaimForDispatch does that.
func (r *GormCallbackRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.CallbackRequest, error) {
	var reqs []*domain.CallbackRequest
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.CallbackStatus{domain.CallbackPending, domain.CallbackScheduled}).
		Where("(scheduled_time IS NOT NULL AND scheduled_time <= ?) OR (next_attempt_at IS NOT NULL AND next_attempt_at <= ?)", now, now).
		Order("scheduled_time ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalInvariant, "list due callbacks", err)
	}
	return reqs, nil
}

// ClaimForDispatch is the §4.3 "Concurrency contract" compare-and-set:
// only one scheduler worker can move a given request out of
// {scheduled, pending} into in_progress, so only one attempt per
// request is ever in flight.
func (r *GormCallbackRepository) ClaimForDispatch(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.CallbackRequest{}).
		Where("id = ? AND status IN ?", id, []domain.CallbackStatus{
			domain.CallbackPending, domain.CallbackScheduled,
		}).
		Update("status", domain.CallbackInProgress)
	if res.Error != nil {
		return false, apierr.Wrap(apierr.InternalInvariant, "claim callback for dispatch", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormCallbackRepository) RecordAttempt(ctx context.Context, a *domain.CallbackAttempt) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "record callback attempt", err)
	}
	return nil
}
