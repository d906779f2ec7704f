package repository

import (
	"context"
	"errors"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"gorm.io/gorm"
)

// ScalingRepository persists per-tenant ScalingPolicy and the
// ScalingEvent audit trail (§3, §4.4).
type ScalingRepository interface {
	GetPolicy(ctx context.Context, tenantID string) (*domain.ScalingPolicy, error)
	UpsertPolicy(ctx context.Context, p *domain.ScalingPolicy) error
	RecordEvent(ctx context.Context, e *domain.ScalingEvent) error
	LastEvent(ctx context.Context, tenantID string, action domain.ScalingAction) (*domain.ScalingEvent, error)
}

type GormScalingRepository struct {
	db *gorm.DB
}

func NewGormScalingRepository(db *gorm.DB) *GormScalingRepository {
	return &GormScalingRepository{db: db}
}

func (r *GormScalingRepository) GetPolicy(ctx context.Context, tenantID string) (*domain.ScalingPolicy, error) {
	var p domain.ScalingPolicy
	if err := r.db.WithContext(ctx).First(&p, "tenant_id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(apierr.NotFound, "scaling policy not found: "+tenantID)
		}
		return nil, apierr.Wrap(apierr.InternalInvariant, "get scaling policy", err)
	}
	return &p, nil
}

func (r *GormScalingRepository) UpsertPolicy(ctx context.Context, p *domain.ScalingPolicy) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "upsert scaling policy", err)
	}
	return nil
}

func (r *GormScalingRepository) RecordEvent(ctx context.Context, e *domain.ScalingEvent) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "record scaling event", err)
	}
	return nil
}

// LastEvent finds the most recent event of the given action, used to
// evaluate whether a cooldown window is still in effect. Cooldowns
// are directional: a failed scale-up still sets the scale-up
// cooldown, and never touches the scale-down cooldown (§Open Questions).
func (r *GormScalingRepository) LastEvent(ctx context.Context, tenantID string, action domain.ScalingAction) (*domain.ScalingEvent, error) {
	var e domain.ScalingEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND action = ?", tenantID, action).
		Order("timestamp DESC").
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apierr.Wrap(apierr.InternalInvariant, "get last scaling event", err)
	}
	return &e, nil
}
