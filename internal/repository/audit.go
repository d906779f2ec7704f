package repository

import (
	"context"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"gorm.io/gorm"
)

// AuditRepository is an append-only writer for AuditEvent records
// (§4.7). There is intentionally no Update or Delete — the audit log
// is immutable once sanitized and written.
type AuditRepository interface {
	Append(ctx context.Context, e *domain.AuditEvent) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEvent, error)
}

type GormAuditRepository struct {
	db *gorm.DB
}

func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

func (r *GormAuditRepository) Append(ctx context.Context, e *domain.AuditEvent) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "append audit event", err)
	}
	return nil
}

func (r *GormAuditRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEvent, error) {
	var events []*domain.AuditEvent
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).
		Order("timestamp DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalInvariant, "list audit events", err)
	}
	return events, nil
}
