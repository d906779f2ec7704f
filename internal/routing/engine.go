// Package routing implements the Routing Engine of §4.2: a pure
// selection function over an Agent Directory snapshot, plus the
// reserve-with-retry loop and the per-request transfer attempt state
// machine that drives it.
package routing

import (
	"context"
	"sort"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/directory"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

const maxReserveRetries = 3

// Criteria selects the candidate pool for one routing request.
type Criteria struct {
	TenantID     string
	DepartmentID string
	Skills       domain.StringSet
	Languages    domain.StringSet
}

// Engine wraps the Agent Directory with the scoring/selection policy.
type Engine struct {
	dir *directory.Service
}

func NewEngine(dir *directory.Service) *Engine {
	return &Engine{dir: dir}
}

// Select scores a directory snapshot and returns the winning
// candidate id, pure over the returned slice (§4.2 "Routing selection
// policy"). Ties are broken by the lower agent id to make the result
// deterministic given an identical snapshot.
func Select(candidates []*domain.Agent) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	sorted := make([]*domain.Agent, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.RoutingWeight != b.RoutingWeight {
			return a.RoutingWeight > b.RoutingWeight
		}
		if a.CurrentCalls != b.CurrentCalls {
			return a.CurrentCalls < b.CurrentCalls
		}
		if !a.LastCallAt.Equal(b.LastCallAt) {
			return a.LastCallAt.Before(b.LastCallAt)
		}
		return a.ID < b.ID
	})
	return sorted[0].ID, true
}

// ReserveBest fetches a fresh snapshot, picks the best candidate, and
// attempts to reserve it; on a reservation race (another session won
// the same slot first) it re-snapshots and retries up to
// maxReserveRetries times before yielding NoAgentAvailable (§4.2 step 4).
func (e *Engine) ReserveBest(ctx context.Context, c Criteria, now time.Time) (agentID string, err error) {
	for attempt := 0; attempt < maxReserveRetries; attempt++ {
		candidates, err := e.dir.ListAvailable(ctx, c.TenantID, c.DepartmentID, c.Skills, c.Languages, now)
		if err != nil {
			return "", err
		}

		chosen, ok := Select(candidates)
		if !ok {
			return "", apierr.New(apierr.NotFound, "no agent available")
		}

		reserved, err := e.dir.Reserve(ctx, chosen)
		if err != nil {
			return "", err
		}
		if reserved {
			return chosen, nil
		}
		// Lost the race for `chosen`; loop and re-snapshot.
	}
	return "", apierr.New(apierr.NotFound, "no agent available")
}
