package domain

import "time"

// JSONB is a free-form JSON bag used for forward-compatible config and
// payload fields (see Design Note "Dynamic payloads"). Known fields are
// modeled as typed structs elsewhere; JSONB is reserved for genuinely
// open-ended extras.
type JSONB map[string]interface{}

// Tenant is the top-level isolation boundary. Every persistent entity
// in the system carries a TenantID and every read/write must be
// scoped by it.
type Tenant struct {
	ID                string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID          string    `json:"tenant_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name              string    `json:"name" gorm:"type:varchar(255);not null"`
	Active            bool      `json:"active" gorm:"default:true"`
	MonthlyMinuteQuota int64    `json:"monthly_minute_quota" gorm:"not null"` // in seconds
	CreditWarningPct  float64   `json:"credit_warning_pct" gorm:"default:0.9"`
	MaxConcurrentCalls int      `json:"max_concurrent_calls" gorm:"default:50"`
	MaxTransferAttempts int     `json:"max_transfer_attempts" gorm:"default:2"`
	RoutingDefaults   JSONB     `json:"routing_defaults" gorm:"type:jsonb"`
	FeatureFlags      JSONB     `json:"feature_flags" gorm:"type:jsonb"`
	BusinessHours     BusinessHoursPolicy `json:"business_hours" gorm:"type:jsonb"`
	BillingCycleStart time.Time `json:"billing_cycle_start"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Tenant) TableName() string { return "tenants" }

// BusinessHoursPolicy is a per-tenant or per-department predicate
// parameterized schedule; see GLOSSARY "Business-hours schedule".
type BusinessHoursPolicy struct {
	Timezone       string         `json:"timezone"`
	WeeklySchedule map[string]Window `json:"weekly_schedule"` // "mon".."sun" -> window
}

// Window is a half-open clock interval expressed as minutes-since-midnight.
type Window struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// IsBusinessHours reports whether instant t falls inside the policy's
// schedule for its weekday, in the policy's timezone.
func (p BusinessHoursPolicy) IsBusinessHours(t time.Time) bool {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	day := weekdayKey(local.Weekday())
	w, ok := p.WeeklySchedule[day]
	if !ok {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= w.StartMinute && minute < w.EndMinute
}

func weekdayKey(d time.Weekday) string {
	return [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}[d]
}

// Department is a tenant-scoped routing bucket (e.g. sales, support).
type Department struct {
	ID                string               `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID          string               `json:"tenant_id" gorm:"type:varchar(255);not null;index"`
	Name              string               `json:"name" gorm:"type:varchar(255);not null"`
	VoicemailBoxID    string               `json:"voicemail_box_id" gorm:"type:varchar(255)"`
	BusinessHours     *BusinessHoursPolicy `json:"business_hours,omitempty" gorm:"type:jsonb"`
	CreatedAt         time.Time            `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time            `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Department) TableName() string { return "departments" }
