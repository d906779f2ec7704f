package repository

import (
	"context"
	"errors"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"gorm.io/gorm"
)

// GatewayRepository persists the HA Gateway's ServiceEndpoint pool and
// FailoverEvent history (§4.5).
type GatewayRepository interface {
	ListEndpoints(ctx context.Context) ([]*domain.ServiceEndpoint, error)
	GetEndpoint(ctx context.Context, id string) (*domain.ServiceEndpoint, error)
	UpdateEndpoint(ctx context.Context, e *domain.ServiceEndpoint) error
	RecordFailover(ctx context.Context, f *domain.FailoverEvent) error
}

type GormGatewayRepository struct {
	db *gorm.DB
}

func NewGormGatewayRepository(db *gorm.DB) *GormGatewayRepository {
	return &GormGatewayRepository{db: db}
}

func (r *GormGatewayRepository) ListEndpoints(ctx context.Context) ([]*domain.ServiceEndpoint, error) {
	var eps []*domain.ServiceEndpoint
	if err := r.db.WithContext(ctx).Order("priority ASC").Find(&eps).Error; err != nil {
		return nil, apierr.Wrap(apierr.InternalInvariant, "list service endpoints", err)
	}
	return eps, nil
}

func (r *GormGatewayRepository) GetEndpoint(ctx context.Context, id string) (*domain.ServiceEndpoint, error) {
	var e domain.ServiceEndpoint
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(apierr.NotFound, "service endpoint not found: "+id)
		}
		return nil, apierr.Wrap(apierr.InternalInvariant, "get service endpoint", err)
	}
	return &e, nil
}

func (r *GormGatewayRepository) UpdateEndpoint(ctx context.Context, e *domain.ServiceEndpoint) error {
	if err := r.db.WithContext(ctx).Save(e).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "update service endpoint", err)
	}
	return nil
}

func (r *GormGatewayRepository) RecordFailover(ctx context.Context, f *domain.FailoverEvent) error {
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "record failover event", err)
	}
	return nil
}
