package config

import "time"

// GatewayConfig configures the HA Gateway's default endpoint pool and
// circuit-breaker tuning (§4.5).
type GatewayConfig struct {
	Endpoints          []string
	SelectionPolicy    string
	HealthCheckPeriod  time.Duration
	FailureThreshold   int // consecutive failures before circuit opens
	HalfOpenAfter      time.Duration
}

func loadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Endpoints:         splitAndTrimStrings(getEnvOrDefault("GATEWAY_ENDPOINTS", ""), ","),
		SelectionPolicy:   getEnvOrDefault("GATEWAY_SELECTION_POLICY", "weighted_round_robin"),
		HealthCheckPeriod: getEnvAsDurationOrDefault("GATEWAY_HEALTH_CHECK_PERIOD", 10*time.Second),
		FailureThreshold:  getEnvAsIntOrDefault("GATEWAY_FAILURE_THRESHOLD", 5),
		HalfOpenAfter:     getEnvAsDurationOrDefault("GATEWAY_HALF_OPEN_AFTER", 30*time.Second),
	}
}
