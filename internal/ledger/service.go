// Package ledger implements the Per-Tenant Credit/Quota Ledger (§4.6):
// check_budget/debit/credit over a transaction table, preserving
// sum(transactions) == current_usage.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
)

const debitReason = "call_usage"

// Service answers budget checks and records usage transactions.
// Debits are serialized per tenant with an in-process mutex, matching
// the single-writer-per-tenant assumption of §5 "Credit ledger debits
// are serialized per tenant" — multi-pod serialization additionally
// relies on the repository's idempotent insert under call_id.
type Service struct {
	repos   repository.RepositoryManager
	tenants repository.TenantRepository
	locks   sync.Map // tenantID -> *sync.Mutex
}

func NewService(repos repository.RepositoryManager) *Service {
	return &Service{repos: repos, tenants: repos.Tenant()}
}

func (s *Service) lockFor(tenantID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CheckBudget is a pure read, linearizable with Debit via the same
// per-tenant mutex (§4.6).
func (s *Service) CheckBudget(ctx context.Context, tenantID string, seconds int64) (domain.BudgetDecision, error) {
	mu := s.lockFor(tenantID)
	mu.Lock()
	defer mu.Unlock()
	return s.checkBudgetLocked(ctx, tenantID, seconds)
}

func (s *Service) checkBudgetLocked(ctx context.Context, tenantID string, seconds int64) (domain.BudgetDecision, error) {
	tenant, err := s.tenants.GetByTenantID(ctx, tenantID)
	if err != nil {
		return domain.BudgetDeny, err
	}

	cycleStart := currentCycleStart(tenant.BillingCycleStart.Day(), time.Now())
	usage, err := s.repos.Ledger().CurrentUsageSeconds(ctx, tenantID, cycleStart)
	if err != nil {
		return domain.BudgetDeny, err
	}

	limit := tenant.MonthlyMinuteQuota
	projected := usage + seconds
	if projected > limit {
		return domain.BudgetDeny, nil
	}

	warnAt := limit - int64(float64(limit)*tenant.CreditWarningPct/100)
	if projected >= warnAt {
		return domain.BudgetWarn, nil
	}
	return domain.BudgetOK, nil
}

// Debit performs the atomic compare-and-increment: check_budget and
// the usage-transaction insert happen under the same tenant lock and
// database transaction, and the insert is idempotent by call_id so a
// retried debit for the same call never double-charges.
func (s *Service) Debit(ctx context.Context, tenantID string, seconds int64, callID string) (committed bool, err error) {
	mu := s.lockFor(tenantID)
	mu.Lock()
	defer mu.Unlock()

	err = s.repos.WithTx(ctx, func(ctx context.Context, repos repository.RepositoryManager) error {
		decision, err := s.checkBudgetLockedWith(ctx, repos, tenantID, seconds)
		if err != nil {
			return err
		}
		if decision == domain.BudgetDeny {
			committed = false
			return nil
		}

		tx := &domain.CreditTransaction{
			TenantID:  tenantID,
			Seconds:   seconds,
			CallID:    callID,
			Reason:    debitReason,
			CreatedAt: time.Now(),
		}
		inserted, err := repos.Ledger().RecordTransaction(ctx, tx)
		if err != nil {
			return err
		}
		committed = inserted || committed
		if !inserted {
			// Already recorded for this call_id: idempotent success.
			committed = true
		}
		return nil
	})
	return committed, err
}

func (s *Service) checkBudgetLockedWith(ctx context.Context, repos repository.RepositoryManager, tenantID string, seconds int64) (domain.BudgetDecision, error) {
	tenant, err := repos.Tenant().GetByTenantID(ctx, tenantID)
	if err != nil {
		return domain.BudgetDeny, err
	}
	cycleStart := currentCycleStart(tenant.BillingCycleStart.Day(), time.Now())
	usage, err := repos.Ledger().CurrentUsageSeconds(ctx, tenantID, cycleStart)
	if err != nil {
		return domain.BudgetDeny, err
	}
	if usage+seconds > tenant.MonthlyMinuteQuota {
		return domain.BudgetDeny, nil
	}
	return domain.BudgetOK, nil
}

// Credit always succeeds and never debits; seconds should be <= 0
// (a negative adjustment reducing usage) for a refund, or the
// synthetic reset below.
func (s *Service) Credit(ctx context.Context, tenantID string, seconds int64, reason string) error {
	mu := s.lockFor(tenantID)
	mu.Lock()
	defer mu.Unlock()

	if seconds > 0 {
		return apierr.New(apierr.Validation, "credit seconds must be zero or negative")
	}

	tx := &domain.CreditTransaction{
		TenantID:   tenantID,
		Seconds:    seconds,
		Reason:     reason,
		BestEffort: true,
		CreatedAt:  time.Now(),
	}
	_, err := s.repos.Ledger().RecordTransaction(ctx, tx)
	return err
}

// DebitBestEffort records a call's accrued usage when the normal Debit
// could not commit (e.g. the tenant was deactivated mid-call). It
// bypasses the budget-deny gate intentionally — the usage already
// happened and must be reconciled, not discarded — and marks the
// transaction BestEffort so billing reconciliation can find it (§4.1
// "Charging").
func (s *Service) DebitBestEffort(ctx context.Context, tenantID string, seconds int64, callID string) error {
	mu := s.lockFor(tenantID)
	mu.Lock()
	defer mu.Unlock()

	tx := &domain.CreditTransaction{
		TenantID:   tenantID,
		Seconds:    seconds,
		CallID:     callID,
		Reason:     "best_effort_terminal_debit_failed",
		BestEffort: true,
		CreatedAt:  time.Now(),
	}
	_, err := s.repos.Ledger().RecordTransaction(ctx, tx)
	return err
}

// ResetCycle writes the synthetic -current_usage transaction that
// zeroes a tenant's usage at the start of a new billing cycle. The
// call_id is derived from the cycle boundary so a retried reset for
// the same cycle is a no-op (exactly once per cycle per tenant, §4.6).
func (s *Service) ResetCycle(ctx context.Context, tenantID string, cycleStart time.Time) error {
	mu := s.lockFor(tenantID)
	mu.Lock()
	defer mu.Unlock()

	usage, err := s.repos.Ledger().CurrentUsageSeconds(ctx, tenantID, cycleStart)
	if err != nil {
		return err
	}
	if usage == 0 {
		return nil
	}

	tx := &domain.CreditTransaction{
		TenantID:   tenantID,
		Seconds:    -usage,
		CallID:     "cycle-reset-" + cycleStart.Format("2006-01-02"),
		Reason:     "billing_cycle_reset",
		BestEffort: true,
		CreatedAt:  time.Now(),
	}
	_, err = s.repos.Ledger().RecordTransaction(ctx, tx)
	return err
}

// currentCycleStart finds the most recent monthly anchor on or before
// now, given the tenant's configured cycle-start day-of-month.
func currentCycleStart(billingCycleStartDay int, now time.Time) time.Time {
	day := billingCycleStartDay
	if day <= 0 || day > 28 {
		day = 1
	}
	candidate := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())
	if candidate.After(now) {
		candidate = candidate.AddDate(0, -1, 0)
	}
	return candidate
}
