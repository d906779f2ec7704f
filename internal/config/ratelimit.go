package config

// RateLimitConfig configures the admin API's token bucket
// (golang.org/x/time/rate), applied by internal/handler middleware.
// One bucket is shared by all admin requests; it is not kept per
// tenant or per principal.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: getEnvAsFloatOrDefault("RATE_LIMIT_RPS", 20),
		Burst:             getEnvAsIntOrDefault("RATE_LIMIT_BURST", 40),
	}
}
