package domain

import "time"

// EndpointHealth is the health classification of a Service Endpoint (§4.5).
type EndpointHealth string

const (
	HealthHealthy   EndpointHealth = "healthy"
	HealthDegraded  EndpointHealth = "degraded"
	HealthUnhealthy EndpointHealth = "unhealthy"
	HealthUnknown   EndpointHealth = "unknown"
)

// CircuitState is the per-endpoint gating state (§4.5, GLOSSARY).
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// SelectionPolicy names an HA Gateway load-balancing policy (§4.5).
type SelectionPolicy string

const (
	PolicyRoundRobin         SelectionPolicy = "round_robin"
	PolicyWeightedRoundRobin SelectionPolicy = "weighted_round_robin"
	PolicyLeastConnections   SelectionPolicy = "least_connections"
)

// ServiceEndpoint is a member of the HA Gateway pool (§3).
type ServiceEndpoint struct {
	ID                string         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	URL               string         `json:"url" gorm:"not null"`
	Region            string         `json:"region,omitempty"`
	Priority          int            `json:"priority" gorm:"not null"` // lower = preferred
	Weight            int            `json:"weight" gorm:"not null;default:1"`
	HealthCheckPath   string         `json:"health_check_path"`
	Timeout           time.Duration  `json:"timeout"`
	MaxRetries        int            `json:"max_retries"`
	Status            EndpointHealth `json:"status" gorm:"type:varchar(16);not null;default:'unknown'"`
	ConsecutiveFails  int            `json:"consecutive_fails"`
	Circuit           CircuitState   `json:"circuit" gorm:"type:varchar(16);not null;default:'closed'"`
	NextAttemptAt     time.Time      `json:"next_attempt_at"`
	OutstandingCalls  int            `json:"outstanding_calls"`
	ObservedRequests  int64          `json:"observed_requests"`
	CreatedAt         time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ServiceEndpoint) TableName() string { return "service_endpoints" }

// Eligible reports whether the endpoint may receive traffic: healthy
// or degraded, and circuit not open (§4.5).
func (e *ServiceEndpoint) Eligible() bool {
	return (e.Status == HealthHealthy || e.Status == HealthDegraded) && e.Circuit != CircuitOpen
}

// FailoverEvent records an active-endpoint transition (§4.5).
type FailoverEvent struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	Success   bool      `json:"success"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

func (f *FailoverEvent) Duration() time.Duration {
	return f.EndedAt.Sub(f.StartedAt)
}
