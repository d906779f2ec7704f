// Package gateway implements the High-Availability Gateway of §4.5:
// health-checked endpoint pool, per-endpoint circuit breaker, pluggable
// selection policy, and active-endpoint failover tracking.
package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
)

const defaultHealthCheckInterval = 30 * time.Second

// Gateway owns the endpoint pool, health checker, and active-endpoint
// tracking for one outbound service (e.g. the AI provider, the carrier
// API). One instance per service, constructor-injected — no package
// singleton.
type Gateway struct {
	repo     repository.GatewayRepository
	prober   Prober
	circuits *circuitPool
	policy   domain.SelectionPolicy

	rrCounter uint64
	activeID  atomic.Value // string

	checkInterval time.Duration
}

func NewGateway(repo repository.GatewayRepository, prober Prober, policy domain.SelectionPolicy, failureThreshold int, circuitTimeout time.Duration) *Gateway {
	g := &Gateway{
		repo:          repo,
		prober:        prober,
		circuits:      newCircuitPool(failureThreshold, circuitTimeout),
		policy:        policy,
		checkInterval: defaultHealthCheckInterval,
	}
	g.activeID.Store("")
	return g
}

// Select picks the endpoint that should receive the next outbound
// request, applying §4.5's eligibility rule and the configured policy.
func (g *Gateway) Select(ctx context.Context) (*domain.ServiceEndpoint, error) {
	eps, err := g.repo.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	if len(eps) == 0 {
		return nil, apierr.New(apierr.NotFound, "no service endpoints configured")
	}

	pool, fellBack := eligible(eps)
	if fellBack {
		logger.Base().Error("no eligible endpoints, falling back to full pool",
			zap.Int("endpoint_count", len(eps)))
	}

	var chosen *domain.ServiceEndpoint
	switch g.policy {
	case domain.PolicyRoundRobin:
		chosen = selectRoundRobin(pool, atomic.AddUint64(&g.rrCounter, 1)-1)
	case domain.PolicyLeastConnections:
		chosen = selectLeastConnections(pool)
	default:
		chosen = selectWeightedRoundRobin(pool)
	}
	if chosen == nil {
		return nil, apierr.New(apierr.UpstreamFailure, "no endpoint available")
	}
	return chosen, nil
}

// RunHealthChecks blocks, probing every endpoint on checkInterval
// until ctx is cancelled, applying the §4.5 circuit-breaker transition
// after each probe and evaluating the active-endpoint failover.
func (g *Gateway) RunHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(g.checkInterval)
	defer ticker.Stop()

	logger.Base().Info("gateway health checker started", zap.Duration("interval", g.checkInterval))

	for {
		select {
		case <-ticker.C:
			if err := g.checkAll(ctx); err != nil {
				logger.Base().Error("gateway health check pass failed", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Base().Info("gateway health checker stopped")
			return
		}
	}
}

func (g *Gateway) checkAll(ctx context.Context) error {
	eps, err := g.repo.ListEndpoints(ctx)
	if err != nil {
		return err
	}

	for _, ep := range eps {
		health := g.prober.Probe(ctx, ep)
		ep.Status = health
		g.circuits.recordOutcome(ep, health == domain.HealthHealthy || health == domain.HealthDegraded)
		if err := g.repo.UpdateEndpoint(ctx, ep); err != nil {
			logger.Base().Error("failed to persist endpoint health",
				zap.String("endpoint_id", ep.ID), zap.Error(err))
		}
	}

	return g.evaluateFailover(ctx, eps)
}

// evaluateFailover implements §4.5 "Failover": the highest-priority
// eligible endpoint is made active whenever it differs from the current
// one — both when the current endpoint is no longer eligible and when a
// higher-priority endpoint is eligible again — and each switch records
// a FailoverEvent.
func (g *Gateway) evaluateFailover(ctx context.Context, eps []*domain.ServiceEndpoint) error {
	pool, _ := eligible(eps)
	candidate := activeCandidate(pool)
	if candidate == nil {
		return nil
	}

	currentID, _ := g.activeID.Load().(string)
	if currentID == candidate.ID {
		return nil
	}
	if currentID == "" {
		// First health-check pass: initial assignment, not a failover.
		g.activeID.Store(candidate.ID)
		return nil
	}

	started := time.Now()
	g.activeID.Store(candidate.ID)
	ended := time.Now()

	event := &domain.FailoverEvent{
		From:      currentID,
		To:        candidate.ID,
		Reason:    "active_endpoint_ineligible",
		Success:   true,
		StartedAt: started,
		EndedAt:   ended,
	}
	return g.repo.RecordFailover(ctx, event)
}

// Active returns the id of the current active endpoint, or "" before
// the first health-check pass has run.
func (g *Gateway) Active() string {
	id, _ := g.activeID.Load().(string)
	return id
}
