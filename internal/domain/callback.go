package domain

import "time"

// CallbackPriority is a caller-assigned urgency tier (§3).
type CallbackPriority string

const (
	PriorityLow    CallbackPriority = "low"
	PriorityNormal CallbackPriority = "normal"
	PriorityHigh   CallbackPriority = "high"
	PriorityUrgent CallbackPriority = "urgent"
	PriorityVIP    CallbackPriority = "vip"
)

var priorityRank = map[CallbackPriority]int{
	PriorityLow:    1,
	PriorityNormal: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
	PriorityVIP:    5,
}

// CallbackStatus is a node in the callback lifecycle DAG (§8 item 3).
type CallbackStatus string

const (
	CallbackPending    CallbackStatus = "pending"
	CallbackScheduled  CallbackStatus = "scheduled"
	CallbackInProgress CallbackStatus = "in_progress"
	CallbackCompleted  CallbackStatus = "completed"
	CallbackFailed     CallbackStatus = "failed"
	CallbackCancelled  CallbackStatus = "cancelled"
	CallbackExpired    CallbackStatus = "expired"
)

// AttemptOutcome is the result of a single callback attempt.
type AttemptOutcome string

const (
	OutcomeConnected AttemptOutcome = "connected"
	OutcomeNoAnswer  AttemptOutcome = "no_answer"
	OutcomeBusy      AttemptOutcome = "busy"
	OutcomeInvalid   AttemptOutcome = "invalid"
	OutcomeFailed    AttemptOutcome = "failed"
)

// CallbackRequest is a tenant-scoped, persistent request to return a
// caller's call (§3).
type CallbackRequest struct {
	ID                string           `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID          string           `json:"tenant_id" gorm:"type:varchar(255);not null;index"`
	CallerFingerprint string           `json:"caller_fingerprint" gorm:"type:varchar(255);not null"`
	Name              string           `json:"name,omitempty"`
	Email             string           `json:"email,omitempty"`
	Reason            string           `json:"reason,omitempty"`
	Type              string           `json:"type,omitempty"`
	Priority          CallbackPriority `json:"priority" gorm:"type:varchar(16);not null;default:'normal'"`
	RequestedTime     *time.Time       `json:"requested_time,omitempty"`
	ScheduledTime     *time.Time       `json:"scheduled_time,omitempty"`
	WindowStart       time.Time        `json:"window_start"`
	WindowEnd         time.Time        `json:"window_end"`
	Timezone          string           `json:"timezone"`
	Attempts          int              `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts       int              `json:"max_attempts" gorm:"not null;default:3"`
	NextAttemptAt     *time.Time       `json:"next_attempt_at,omitempty"`
	Status            CallbackStatus   `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	DepartmentID      string           `json:"department_id,omitempty"`
	AgentID           string           `json:"agent_id,omitempty"`
	FollowUpRequired  bool             `json:"follow_up_required"`
	Outcome           string           `json:"outcome,omitempty"`
	CreatedAt         time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CallbackRequest) TableName() string { return "callback_requests" }

// IsOverdue reports whether the request is past its next scheduled
// attempt time relative to now.
func (r *CallbackRequest) IsOverdue(now time.Time) bool {
	if r.NextAttemptAt != nil && now.After(*r.NextAttemptAt) {
		return true
	}
	if r.ScheduledTime != nil && now.After(*r.ScheduledTime) {
		return true
	}
	return false
}

// PriorityScore computes the scheduler ordering score: 10*priority +
// 5*attempts + (20 if overdue else 0) (§3).
func (r *CallbackRequest) PriorityScore(now time.Time) int {
	score := 10*priorityRank[r.Priority] + 5*r.Attempts
	if r.IsOverdue(now) {
		score += 20
	}
	return score
}

// IsExpired reports whether now is past the acceptable time window.
func (r *CallbackRequest) IsExpired(now time.Time) bool {
	return !r.WindowEnd.IsZero() && now.After(r.WindowEnd)
}

// ScheduledTimeOrZero returns ScheduledTime if set, else the zero
// time, so callers can sort due requests without a nil check.
func (r *CallbackRequest) ScheduledTimeOrZero() time.Time {
	if r.ScheduledTime == nil {
		return time.Time{}
	}
	return *r.ScheduledTime
}

// CallbackAttempt is an append-only child record of a CallbackRequest.
type CallbackAttempt struct {
	ID                string         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CallbackRequestID string         `json:"callback_request_id" gorm:"type:varchar(255);not null;index"`
	Sequence          int            `json:"sequence" gorm:"not null"`
	Timestamp         time.Time      `json:"timestamp" gorm:"autoCreateTime"`
	Outcome           AttemptOutcome `json:"outcome" gorm:"type:varchar(16);not null"`
	CallSessionID     string         `json:"call_session_id,omitempty"`
	AgentID           string         `json:"agent_id,omitempty"`
}

func (CallbackAttempt) TableName() string { return "callback_attempts" }

// Backoff returns the delay before the next attempt given the
// post-increment attempt count (attempts made so far, including the
// one that just failed). Ladder: 15m, 1h, 4h, 4h, ... (§4.3, grounded
// on original_source/voicecore/services/callback_service.py) — so
// Backoff(1) == 15m, Backoff(2) == 1h, Backoff(n>=3) == 4h.
func Backoff(attemptsMade int) time.Duration {
	ladder := []time.Duration{15 * time.Minute, 1 * time.Hour, 4 * time.Hour}
	idx := attemptsMade - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(ladder) {
		idx = len(ladder) - 1
	}
	return ladder[idx]
}
