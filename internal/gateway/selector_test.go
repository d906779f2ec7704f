package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

func healthyEndpoint(id string, priority, weight int) *domain.ServiceEndpoint {
	return &domain.ServiceEndpoint{ID: id, Priority: priority, Weight: weight, Status: domain.HealthHealthy, Circuit: domain.CircuitClosed}
}

func TestEligible_FiltersUnhealthyAndOpenCircuit(t *testing.T) {
	healthy := healthyEndpoint("a", 1, 1)
	openCircuit := &domain.ServiceEndpoint{ID: "b", Status: domain.HealthHealthy, Circuit: domain.CircuitOpen}
	unhealthy := &domain.ServiceEndpoint{ID: "c", Status: domain.HealthUnhealthy, Circuit: domain.CircuitClosed}

	pool, fellBack := eligible([]*domain.ServiceEndpoint{healthy, openCircuit, unhealthy})

	assert.False(t, fellBack)
	assert.Len(t, pool, 1)
	assert.Equal(t, "a", pool[0].ID)
}

func TestEligible_FallsBackToFullPoolWhenNoneEligible(t *testing.T) {
	eps := []*domain.ServiceEndpoint{
		{ID: "a", Status: domain.HealthUnhealthy},
		{ID: "b", Status: domain.HealthUnhealthy},
	}

	pool, fellBack := eligible(eps)

	assert.True(t, fellBack)
	assert.Len(t, pool, 2)
}

func TestSelectRoundRobin_CyclesInsertionOrder(t *testing.T) {
	pool := []*domain.ServiceEndpoint{healthyEndpoint("a", 1, 1), healthyEndpoint("b", 2, 1), healthyEndpoint("c", 3, 1)}

	assert.Equal(t, "a", selectRoundRobin(pool, 0).ID)
	assert.Equal(t, "b", selectRoundRobin(pool, 1).ID)
	assert.Equal(t, "c", selectRoundRobin(pool, 2).ID)
	assert.Equal(t, "a", selectRoundRobin(pool, 3).ID)
}

func TestSelectLeastConnections_PicksLowestOutstanding(t *testing.T) {
	a := healthyEndpoint("a", 1, 1)
	a.OutstandingCalls = 5
	b := healthyEndpoint("b", 2, 1)
	b.OutstandingCalls = 1
	c := healthyEndpoint("c", 3, 1)
	c.OutstandingCalls = 3

	chosen := selectLeastConnections([]*domain.ServiceEndpoint{a, b, c})

	assert.Equal(t, "b", chosen.ID)
}

func TestSelectWeightedRoundRobin_PicksFurthestBelowTarget(t *testing.T) {
	// Equal weights, but "a" has received disproportionately more traffic.
	a := healthyEndpoint("a", 1, 1)
	a.ObservedRequests = 90
	b := healthyEndpoint("b", 2, 1)
	b.ObservedRequests = 10

	chosen := selectWeightedRoundRobin([]*domain.ServiceEndpoint{a, b})

	assert.Equal(t, "b", chosen.ID)
}

func TestSelectWeightedRoundRobin_NoTrafficYetReturnsAnEndpoint(t *testing.T) {
	pool := []*domain.ServiceEndpoint{healthyEndpoint("a", 1, 1), healthyEndpoint("b", 2, 2)}

	chosen := selectWeightedRoundRobin(pool)

	assert.NotNil(t, chosen)
}

func TestActiveCandidate_PicksLowestPriorityNumber(t *testing.T) {
	pool := []*domain.ServiceEndpoint{healthyEndpoint("a", 5, 1), healthyEndpoint("b", 1, 1), healthyEndpoint("c", 3, 1)}

	candidate := activeCandidate(pool)

	assert.Equal(t, "b", candidate.ID)
}
