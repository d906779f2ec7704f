package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AgentStatus is the set of permitted agent availability states (§3).
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentAway      AgentStatus = "away"
	AgentOffline   AgentStatus = "offline"
)

// StringSet is a set of strings persisted as a JSON array; used for
// skill tags and language tags.
type StringSet []string

func (s StringSet) Value() (driver.Value, error) {
	return json.Marshal([]string(s))
}

func (s *StringSet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringSet", value)
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// Contains reports whether s is a superset of required.
func (s StringSet) Contains(required StringSet) bool {
	have := make(map[string]struct{}, len(s))
	for _, v := range s {
		have[v] = struct{}{}
	}
	for _, v := range required {
		if _, ok := have[v]; !ok {
			return false
		}
	}
	return true
}

// Agent is tenant- and department-scoped. Invariant:
// 0 <= CurrentCalls <= Capacity (§3, §8 item 2).
type Agent struct {
	ID             string      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID       string      `json:"tenant_id" gorm:"type:varchar(255);not null;index"`
	DepartmentID   string      `json:"department_id" gorm:"type:varchar(255);index"`
	Extension      string      `json:"extension" gorm:"type:varchar(32);not null;uniqueIndex:idx_tenant_extension"`
	Status         AgentStatus `json:"status" gorm:"type:varchar(16);not null;default:'offline'"`
	CurrentCalls   int         `json:"current_calls" gorm:"not null;default:0"`
	Capacity       int         `json:"capacity" gorm:"not null;default:1"`
	Skills         StringSet   `json:"skills" gorm:"type:jsonb"`
	Languages      StringSet   `json:"languages" gorm:"type:jsonb"`
	RoutingWeight  int         `json:"routing_weight" gorm:"not null;default:1"`
	WorkSchedule   BusinessHoursPolicy `json:"work_schedule" gorm:"type:jsonb"`
	LastCallAt     time.Time   `json:"last_call_at"`
	CreatedAt      time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Agent) TableName() string { return "agents" }

// Valid reports whether the agent satisfies its capacity invariant.
func (a *Agent) Valid() bool {
	return a.CurrentCalls >= 0 && a.CurrentCalls <= a.Capacity
}

// IsAvailableNow reports whether the agent can currently take a call:
// status available, capacity not exhausted, within its work schedule.
func (a *Agent) IsAvailableNow(now time.Time) bool {
	return a.Status == AgentAvailable &&
		a.CurrentCalls < a.Capacity &&
		a.WorkSchedule.IsBusinessHours(now)
}
