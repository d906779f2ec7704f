package domain

import "time"

// AuditEvent is an append-only, tenant-scoped, sanitized record of a
// system action (§3, §4.7).
type AuditEvent struct {
	ID            string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID      string    `json:"tenant_id" gorm:"type:varchar(255);not null;index"`
	EventType     string    `json:"event_type" gorm:"type:varchar(64);not null"`
	ActorIDHash   string    `json:"actor_id_hash" gorm:"type:varchar(128)"`
	CorrelationID string    `json:"correlation_id" gorm:"type:varchar(128);index"`
	Payload       JSONB     `json:"payload" gorm:"type:jsonb"`
	Success       bool      `json:"success"`
	Timestamp     time.Time `json:"timestamp" gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string { return "audit_events" }
