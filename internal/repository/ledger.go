package repository

import (
	"context"
	"errors"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"gorm.io/gorm"
)

// LedgerRepository persists credit transactions and derives current
// usage. Credit conservation (§8 "sum(transactions) == current_usage")
// falls out of never updating a running-total column directly: usage
// is always the sum of this table.
type LedgerRepository interface {
	// RecordTransaction inserts a transaction iff no prior transaction
	// with the same (tenant_id, call_id, reason) exists, making debit
	// idempotent under at-least-once delivery (§4.6 "Idempotent debit").
	RecordTransaction(ctx context.Context, tx *domain.CreditTransaction) (inserted bool, err error)
	CurrentUsageSeconds(ctx context.Context, tenantID string, cycleStart interface{}) (int64, error)
	ListTransactions(ctx context.Context, tenantID string, limit int) ([]*domain.CreditTransaction, error)
}

type GormLedgerRepository struct {
	db *gorm.DB
}

func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

func (r *GormLedgerRepository) RecordTransaction(ctx context.Context, tx *domain.CreditTransaction) (bool, error) {
	var existing domain.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND call_id = ? AND reason = ?", tx.TenantID, tx.CallID, tx.Reason).
		First(&existing).Error
	if err == nil {
		return false, nil // already recorded, idempotent no-op
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, apierr.Wrap(apierr.InternalInvariant, "check existing transaction", err)
	}

	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return false, apierr.Wrap(apierr.InternalInvariant, "record credit transaction", err)
	}
	return true, nil
}

func (r *GormLedgerRepository) CurrentUsageSeconds(ctx context.Context, tenantID string, cycleStart interface{}) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.CreditTransaction{}).
		Where("tenant_id = ? AND created_at >= ?", tenantID, cycleStart).
		Select("COALESCE(SUM(seconds), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, apierr.Wrap(apierr.InternalInvariant, "sum credit transactions", err)
	}
	return total, nil
}

func (r *GormLedgerRepository) ListTransactions(ctx context.Context, tenantID string, limit int) ([]*domain.CreditTransaction, error) {
	var txs []*domain.CreditTransaction
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).
		Order("created_at DESC").Limit(limit).Find(&txs).Error
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalInvariant, "list credit transactions", err)
	}
	return txs, nil
}
