package autoscale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

func testPolicy() domain.ScalingPolicy {
	return domain.ScalingPolicy{
		MinInstances:       1,
		MaxInstances:       10,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		ScaleUpIncrement:   2,
		ScaleDownDecrement: 1,
	}
}

func TestEvaluate_Disabled_AlwaysMaintains(t *testing.T) {
	policy := testPolicy()
	policy.Disabled = true

	d := evaluate(policy, 5, 0.95, false, false)

	assert.Equal(t, domain.ActionMaintain, d.Action)
	assert.Equal(t, 5, d.To)
}

func TestEvaluate_ScaleUp_ClampsToMax(t *testing.T) {
	policy := testPolicy()

	d := evaluate(policy, 9, 0.9, false, false)

	assert.Equal(t, domain.ActionScaleUp, d.Action)
	assert.Equal(t, 9, d.From)
	assert.Equal(t, 10, d.To) // 9+2 clamps to MaxInstances=10
	assert.InDelta(t, 1.0, d.Confidence, 0.001)
}

func TestEvaluate_ScaleUp_SuppressedByCooldown(t *testing.T) {
	policy := testPolicy()

	d := evaluate(policy, 3, 0.9, true, false)

	assert.Equal(t, domain.ActionMaintain, d.Action)
}

func TestEvaluate_ScaleUp_SuppressedAtMax(t *testing.T) {
	policy := testPolicy()

	d := evaluate(policy, 10, 0.95, false, false)

	assert.Equal(t, domain.ActionMaintain, d.Action)
}

func TestEvaluate_ScaleDown_ClampsToMin(t *testing.T) {
	policy := testPolicy()
	policy.ScaleDownDecrement = 5

	d := evaluate(policy, 3, 0.1, false, false)

	assert.Equal(t, domain.ActionScaleDown, d.Action)
	assert.Equal(t, 1, d.To) // 3-5 clamps to MinInstances=1
}

func TestEvaluate_ScaleDown_SuppressedByCooldown(t *testing.T) {
	policy := testPolicy()

	d := evaluate(policy, 5, 0.1, false, true)

	assert.Equal(t, domain.ActionMaintain, d.Action)
}

func TestEvaluate_WithinBand_Maintains(t *testing.T) {
	policy := testPolicy()

	d := evaluate(policy, 5, 0.5, false, false)

	assert.Equal(t, domain.ActionMaintain, d.Action)
	assert.Equal(t, 5, d.To)
}

func TestEffectiveCapacity_AppliesStressFactor(t *testing.T) {
	nominal := effectiveCapacity(4, 50, domain.SystemStress{CPUPercent: 10, MemoryPercent: 10})
	assert.Equal(t, 200.0, nominal)

	stressed := effectiveCapacity(4, 50, domain.SystemStress{CPUPercent: 85, MemoryPercent: 10})
	assert.Equal(t, 160.0, stressed) // 200 * 0.8
}

func TestClip_BoundsToUnitInterval(t *testing.T) {
	assert.Equal(t, 0.0, clip(-1))
	assert.Equal(t, 1.0, clip(2))
	assert.Equal(t, 0.5, clip(0.5))
}
