package repository

import (
	"context"
	"errors"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"gorm.io/gorm"
)

// TenantRepository persists Tenant and Department records (§3).
type TenantRepository interface {
	Create(ctx context.Context, t *domain.Tenant) error
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	Update(ctx context.Context, t *domain.Tenant) error
	ListActive(ctx context.Context) ([]*domain.Tenant, error)

	CreateDepartment(ctx context.Context, d *domain.Department) error
	GetDepartment(ctx context.Context, id string) (*domain.Department, error)
	ListDepartments(ctx context.Context, tenantID string) ([]*domain.Department, error)
}

type GormTenantRepository struct {
	db *gorm.DB
}

func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

func (r *GormTenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "create tenant", err)
	}
	return nil
}

func (r *GormTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(apierr.NotFound, "tenant not found: "+id)
		}
		return nil, apierr.Wrap(apierr.InternalInvariant, "get tenant", err)
	}
	return &t, nil
}

func (r *GormTenantRepository) GetByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := r.db.WithContext(ctx).First(&t, "tenant_id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(apierr.NotFound, "tenant not found: "+tenantID)
		}
		return nil, apierr.Wrap(apierr.InternalInvariant, "get tenant by tenant_id", err)
	}
	return &t, nil
}

func (r *GormTenantRepository) Update(ctx context.Context, t *domain.Tenant) error {
	if err := r.db.WithContext(ctx).Save(t).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "update tenant", err)
	}
	return nil
}

func (r *GormTenantRepository) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	var tenants []*domain.Tenant
	if err := r.db.WithContext(ctx).Where("active = ?", true).Find(&tenants).Error; err != nil {
		return nil, apierr.Wrap(apierr.InternalInvariant, "list active tenants", err)
	}
	return tenants, nil
}

func (r *GormTenantRepository) CreateDepartment(ctx context.Context, d *domain.Department) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "create department", err)
	}
	return nil
}

func (r *GormTenantRepository) GetDepartment(ctx context.Context, id string) (*domain.Department, error) {
	var d domain.Department
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(apierr.NotFound, "department not found: "+id)
		}
		return nil, apierr.Wrap(apierr.InternalInvariant, "get department", err)
	}
	return &d, nil
}

func (r *GormTenantRepository) ListDepartments(ctx context.Context, tenantID string) ([]*domain.Department, error) {
	var depts []*domain.Department
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&depts).Error; err != nil {
		return nil, apierr.Wrap(apierr.InternalInvariant, "list departments", err)
	}
	return depts, nil
}
