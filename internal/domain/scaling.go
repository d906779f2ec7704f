package domain

import "time"

// ScalingAction is the outcome of one Autoscaler evaluation (§4.4).
type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionMaintain  ScalingAction = "maintain"
)

// ScalingPolicy is per-tenant (or default) autoscaling configuration (§3).
type ScalingPolicy struct {
	TenantID           string        `json:"tenant_id" gorm:"type:varchar(255);primary_key"`
	Disabled           bool          `json:"disabled"`
	MinInstances       int           `json:"min_instances" gorm:"not null"`
	MaxInstances       int           `json:"max_instances" gorm:"not null"`
	TargetUtilization  float64       `json:"target_utilization"`
	ScaleUpThreshold   float64       `json:"scale_up_threshold" gorm:"not null"`
	ScaleDownThreshold float64       `json:"scale_down_threshold" gorm:"not null"`
	ScaleUpCooldown    time.Duration `json:"scale_up_cooldown"`
	ScaleDownCooldown  time.Duration `json:"scale_down_cooldown"`
	ScaleUpIncrement   int           `json:"scale_up_increment" gorm:"not null;default:1"`
	ScaleDownDecrement int           `json:"scale_down_decrement" gorm:"not null;default:1"`
	EvaluationPeriod   time.Duration `json:"evaluation_period"`
}

func (ScalingPolicy) TableName() string { return "scaling_policies" }

// Valid enforces the §3 invariants: min <= max, scale_down_threshold <
// scale_up_threshold.
func (p *ScalingPolicy) Valid() bool {
	return p.MinInstances <= p.MaxInstances && p.ScaleDownThreshold < p.ScaleUpThreshold
}

// ScalingEvent is a recorded autoscaler decision and its execution result.
type ScalingEvent struct {
	ID            string        `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID      string        `json:"tenant_id" gorm:"type:varchar(255);index"`
	Timestamp     time.Time     `json:"timestamp" gorm:"autoCreateTime"`
	Action        ScalingAction `json:"action"`
	FromInstances int           `json:"from_instances"`
	ToInstances   int           `json:"to_instances"`
	Reason        string        `json:"reason"`
	Confidence    float64       `json:"confidence"`
	Success       bool          `json:"success"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

func (ScalingEvent) TableName() string { return "scaling_events" }

// SystemStress carries host-level resource readings used to compute
// effective capacity (§4.4).
type SystemStress struct {
	CPUPercent    float64
	MemoryPercent float64
}

// StressFactor reduces nominal capacity under system stress (§4.4).
func (s SystemStress) StressFactor() float64 {
	if s.CPUPercent > 80 || s.MemoryPercent > 80 {
		return 0.8
	}
	if s.CPUPercent > 60 || s.MemoryPercent > 60 {
		return 0.9
	}
	return 1.0
}
