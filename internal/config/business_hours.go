package config

// DefaultBusinessHoursTimezone is used when a tenant or agent record
// has no timezone set (§3 BusinessHoursPolicy).
func DefaultBusinessHoursTimezone() string {
	return getEnvOrDefault("DEFAULT_BUSINESS_HOURS_TZ", "UTC")
}
