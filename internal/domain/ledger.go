package domain

import "time"

// BudgetDecision is the result of a CheckBudget call (§4.6).
type BudgetDecision string

const (
	BudgetOK   BudgetDecision = "ok"
	BudgetWarn BudgetDecision = "warn"
	BudgetDeny BudgetDecision = "deny"
)

// CreditTransaction is a signed, append-only per-tenant minute
// adjustment. Current usage is a materialized fold over transactions
// (§3, §8 item 4: sum(transactions) == current_usage).
type CreditTransaction struct {
	ID          string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string    `json:"tenant_id" gorm:"type:varchar(255);not null;index"`
	Seconds     int64     `json:"seconds" gorm:"not null"` // signed: debit negative, credit positive
	CallID      string    `json:"call_id,omitempty" gorm:"type:varchar(255);index"`
	Reason      string    `json:"reason,omitempty"`
	BestEffort  bool      `json:"best_effort"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }
