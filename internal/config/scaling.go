package config

import "time"

// ScalingDefaults holds the autoscaling settings loaded from the
// environment (§3, §4.4). cmd/server reads CapacityPerInstance and
// EvaluationPeriod; the policy fields are not applied to any tenant,
// so a tenant without a stored ScalingPolicy is not evaluated.
type ScalingDefaults struct {
	MinInstances       int
	MaxInstances       int
	TargetUtilization  float64
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	ScaleUpCooldown    time.Duration
	ScaleDownCooldown  time.Duration
	ScaleUpIncrement   int
	ScaleDownDecrement int
	EvaluationPeriod   time.Duration
	CapacityPerInstance int
}

func loadScalingDefaults() ScalingDefaults {
	return ScalingDefaults{
		MinInstances:       getEnvAsIntOrDefault("SCALING_MIN_INSTANCES", 1),
		MaxInstances:       getEnvAsIntOrDefault("SCALING_MAX_INSTANCES", 10),
		TargetUtilization:  getEnvAsFloatOrDefault("SCALING_TARGET_UTILIZATION", 0.7),
		ScaleUpThreshold:   getEnvAsFloatOrDefault("SCALING_SCALE_UP_THRESHOLD", 0.8),
		ScaleDownThreshold: getEnvAsFloatOrDefault("SCALING_SCALE_DOWN_THRESHOLD", 0.3),
		ScaleUpCooldown:    getEnvAsDurationOrDefault("SCALING_SCALE_UP_COOLDOWN", 3*time.Minute),
		ScaleDownCooldown:  getEnvAsDurationOrDefault("SCALING_SCALE_DOWN_COOLDOWN", 10*time.Minute),
		ScaleUpIncrement:   getEnvAsIntOrDefault("SCALING_SCALE_UP_INCREMENT", 1),
		ScaleDownDecrement: getEnvAsIntOrDefault("SCALING_SCALE_DOWN_DECREMENT", 1),
		EvaluationPeriod:   getEnvAsDurationOrDefault("SCALING_EVALUATION_PERIOD", 30*time.Second),
		CapacityPerInstance: getEnvAsIntOrDefault("SCALING_CAPACITY_PER_INSTANCE", 50),
	}
}
