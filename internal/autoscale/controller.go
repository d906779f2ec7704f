package autoscale

import (
	"context"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
)

// ScaleFunc effects an instance-count change in the orchestration
// substrate (§4.4 "Execution" — "the substrate is external; the
// controller only knows 'from N to M'"). Implementations live outside
// this package (k8s HPA client, cloud autoscaling group, ...).
type ScaleFunc func(ctx context.Context, tenantID string, from, to int) error

// ConcurrencyProvider reports live load so the controller never has to
// own call accounting itself.
type ConcurrencyProvider interface {
	CurrentConcurrentCalls(ctx context.Context, tenantID string) (int, error)
	SystemStress(ctx context.Context) (domain.SystemStress, error)
}

// Controller runs the §4.4 evaluation loop per tenant.
type Controller struct {
	repos    repository.RepositoryManager
	load     ConcurrencyProvider
	scale    ScaleFunc
	capacityPerInstance int
}

func NewController(repos repository.RepositoryManager, load ConcurrencyProvider, scale ScaleFunc, capacityPerInstance int) *Controller {
	return &Controller{repos: repos, load: load, scale: scale, capacityPerInstance: capacityPerInstance}
}

// Evaluate runs one decision cycle for a tenant, ignoring the
// evaluation-period gate (callers decide when to call this; ForceEvaluation
// is the same call, just invoked out of band) but always honoring cooldowns.
func (c *Controller) Evaluate(ctx context.Context, tenantID string, now time.Time) (Decision, error) {
	policy, err := c.repos.Scaling().GetPolicy(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}

	current, err := c.currentInstances(ctx, tenantID, *policy)
	if err != nil {
		return Decision{}, err
	}

	concurrentCalls, err := c.load.CurrentConcurrentCalls(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}
	stress, err := c.load.SystemStress(ctx)
	if err != nil {
		return Decision{}, err
	}

	capacity := effectiveCapacity(current, c.capacityPerInstance, stress)
	utilization := 0.0
	if capacity > 0 {
		utilization = float64(concurrentCalls) / capacity
	}

	upCooldown, downCooldown, err := c.inCooldown(ctx, tenantID, *policy, now)
	if err != nil {
		return Decision{}, err
	}

	decision := evaluate(*policy, current, utilization, upCooldown, downCooldown)
	recordEvaluation(tenantID, utilization, capacity, decision)

	if decision.Action == domain.ActionMaintain {
		return decision, nil
	}
	return decision, c.execute(ctx, tenantID, decision)
}

// ForceEvaluation is the §4.4 "force_evaluation(tenant_id?)" entrypoint:
// re-runs the decision immediately, ignoring the evaluation period but
// not cooldowns. An empty tenantID re-evaluates every active tenant; a
// tenant without a stored policy fails its evaluation, which is logged.
func (c *Controller) ForceEvaluation(ctx context.Context, tenantID string) error {
	now := time.Now()
	if tenantID != "" {
		_, err := c.Evaluate(ctx, tenantID, now)
		return err
	}

	tenants, err := c.repos.Tenant().ListActive(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		if _, err := c.Evaluate(ctx, t.TenantID, now); err != nil {
			logger.Base().Error("forced autoscale evaluation failed",
				zap.String("tenant_id", t.TenantID), zap.Error(err))
		}
	}
	return nil
}

// execute invokes the registered callback and records the outcome.
// Per §4.4 "on failure, the event is recorded and cooldown is still
// set, to avoid storm retries" — the event write always happens.
func (c *Controller) execute(ctx context.Context, tenantID string, d Decision) error {
	scaleErr := c.scale(ctx, tenantID, d.From, d.To)

	event := &domain.ScalingEvent{
		TenantID:      tenantID,
		Action:        d.Action,
		FromInstances: d.From,
		ToInstances:   d.To,
		Reason:        d.Reason,
		Confidence:    d.Confidence,
		Success:       scaleErr == nil,
	}
	if scaleErr != nil {
		event.ErrorMessage = scaleErr.Error()
	}

	if err := c.repos.Scaling().RecordEvent(ctx, event); err != nil {
		return err
	}
	return scaleErr
}

// currentInstances derives the controller's belief about the live
// instance count from the most recent scale event of either direction,
// falling back to the policy floor when no event has ever been
// recorded (§4.4 has no dedicated "current instances" store; `maintain`
// never changes the count, so the last transition's ToInstances is
// authoritative).
func (c *Controller) currentInstances(ctx context.Context, tenantID string, policy domain.ScalingPolicy) (int, error) {
	up, err := c.repos.Scaling().LastEvent(ctx, tenantID, domain.ActionScaleUp)
	if err != nil {
		return 0, err
	}
	down, err := c.repos.Scaling().LastEvent(ctx, tenantID, domain.ActionScaleDown)
	if err != nil {
		return 0, err
	}

	switch {
	case up == nil && down == nil:
		return policy.MinInstances, nil
	case up == nil:
		return down.ToInstances, nil
	case down == nil:
		return up.ToInstances, nil
	case up.Timestamp.After(down.Timestamp):
		return up.ToInstances, nil
	default:
		return down.ToInstances, nil
	}
}

// inCooldown reports whether a scale-up and/or scale-down is currently
// suppressed by its own cooldown window (independent per direction).
func (c *Controller) inCooldown(ctx context.Context, tenantID string, policy domain.ScalingPolicy, now time.Time) (upCooldown, downCooldown bool, err error) {
	up, err := c.repos.Scaling().LastEvent(ctx, tenantID, domain.ActionScaleUp)
	if err != nil {
		return false, false, err
	}
	down, err := c.repos.Scaling().LastEvent(ctx, tenantID, domain.ActionScaleDown)
	if err != nil {
		return false, false, err
	}

	if up != nil && now.Sub(up.Timestamp) < policy.ScaleUpCooldown {
		upCooldown = true
	}
	if down != nil && now.Sub(down.Timestamp) < policy.ScaleDownCooldown {
		downCooldown = true
	}
	return upCooldown, downCooldown, nil
}
