package gateway

import "github.com/xpload/voicecore-ai-sub002/internal/domain"

// eligible filters to endpoints eligible for traffic per §4.5
// ("status healthy or degraded, circuit not open"). If none are
// eligible it falls back to the full pool so the system still tries —
// callers are responsible for emitting the accompanying critical alert.
func eligible(eps []*domain.ServiceEndpoint) (pool []*domain.ServiceEndpoint, fellBack bool) {
	for _, e := range eps {
		if e.Eligible() {
			pool = append(pool, e)
		}
	}
	if len(pool) == 0 {
		return eps, true
	}
	return pool, false
}

// selectRoundRobin cycles the pool in insertion order using an
// externally-owned counter (so repeated calls advance).
func selectRoundRobin(pool []*domain.ServiceEndpoint, counter uint64) *domain.ServiceEndpoint {
	if len(pool) == 0 {
		return nil
	}
	return pool[counter%uint64(len(pool))]
}

// selectWeightedRoundRobin picks the endpoint whose observed traffic
// share is furthest below its configured weight share (§4.5).
func selectWeightedRoundRobin(pool []*domain.ServiceEndpoint) *domain.ServiceEndpoint {
	if len(pool) == 0 {
		return nil
	}

	var totalWeight, totalObserved int64
	for _, e := range pool {
		totalWeight += int64(e.Weight)
		totalObserved += e.ObservedRequests
	}
	if totalWeight == 0 {
		return pool[0]
	}

	var best *domain.ServiceEndpoint
	bestDeficit := 0.0
	for _, e := range pool {
		weightShare := float64(e.Weight) / float64(totalWeight)
		observedShare := 0.0
		if totalObserved > 0 {
			observedShare = float64(e.ObservedRequests) / float64(totalObserved)
		}
		deficit := weightShare - observedShare
		if best == nil || deficit > bestDeficit {
			best, bestDeficit = e, deficit
		}
	}
	return best
}

// selectLeastConnections picks the endpoint with the fewest
// outstanding requests (§4.5).
func selectLeastConnections(pool []*domain.ServiceEndpoint) *domain.ServiceEndpoint {
	if len(pool) == 0 {
		return nil
	}
	best := pool[0]
	for _, e := range pool[1:] {
		if e.OutstandingCalls < best.OutstandingCalls {
			best = e
		}
	}
	return best
}

// activeCandidate is the highest-priority eligible endpoint — the
// "active endpoint" of §4.5 "Failover".
func activeCandidate(pool []*domain.ServiceEndpoint) *domain.ServiceEndpoint {
	if len(pool) == 0 {
		return nil
	}
	best := pool[0]
	for _, e := range pool[1:] {
		if e.Priority < best.Priority {
			best = e
		}
	}
	return best
}
