// Package autoscale implements the Autoscaling Controller of §4.4:
// a pure utilization/cooldown/hysteresis decision, effective-capacity
// computation under system stress, and the callback-driven execution
// loop that carries a decision out against an external orchestration
// substrate.
package autoscale

import "github.com/xpload/voicecore-ai-sub002/internal/domain"

// Decision is one evaluation's outcome (§4.4 "Algorithm").
type Decision struct {
	Action     domain.ScalingAction
	From       int
	To         int
	Reason     string
	Confidence float64
}

// evaluate is the pure §4.4 algorithm. upInCooldown/downInCooldown are
// resolved by the caller from the policy's own cooldown durations
// against the timestamp of the last event of each direction — cooldowns
// are independent per direction (see DESIGN.md Open Question decision
// "Cooldown directionality").
func evaluate(policy domain.ScalingPolicy, current int, utilization float64, upInCooldown, downInCooldown bool) Decision {
	if policy.Disabled {
		return Decision{Action: domain.ActionMaintain, From: current, To: current, Reason: "disabled"}
	}

	if utilization >= policy.ScaleUpThreshold && current < policy.MaxInstances && !upInCooldown {
		target := current + policy.ScaleUpIncrement
		if target > policy.MaxInstances {
			target = policy.MaxInstances
		}
		return Decision{
			Action:     domain.ActionScaleUp,
			From:       current,
			To:         target,
			Reason:     "utilization",
			Confidence: clip(utilization / policy.ScaleUpThreshold),
		}
	}

	if utilization <= policy.ScaleDownThreshold && current > policy.MinInstances && !downInCooldown {
		target := current - policy.ScaleDownDecrement
		if target < policy.MinInstances {
			target = policy.MinInstances
		}
		return Decision{
			Action:     domain.ActionScaleDown,
			From:       current,
			To:         target,
			Reason:     "utilization",
			Confidence: clip((policy.ScaleDownThreshold - utilization) / policy.ScaleDownThreshold),
		}
	}

	return Decision{Action: domain.ActionMaintain, From: current, To: current, Reason: "within_band"}
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// effectiveCapacity applies §4.4's stress-factor reduction to nominal
// per-fleet capacity.
func effectiveCapacity(instances, capacityPerInstance int, stress domain.SystemStress) float64 {
	nominal := float64(instances * capacityPerInstance)
	return nominal * stress.StressFactor()
}
