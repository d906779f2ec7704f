package gateway

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

const (
	defaultFailureThreshold = 5
	defaultCircuitTimeout   = 60 * time.Second
)

// circuitPool holds one gobreaker.CircuitBreaker per endpoint, keyed
// by endpoint id. gobreaker's three states map directly onto §4.5's
// closed/open/half_open circuit state, so it replaces hand-rolled
// failure counting rather than just wrapping it.
type circuitPool struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	timeout  time.Duration
	threshold uint32
}

func newCircuitPool(failureThreshold int, circuitTimeout time.Duration) *circuitPool {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if circuitTimeout <= 0 {
		circuitTimeout = defaultCircuitTimeout
	}
	return &circuitPool{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		timeout:   circuitTimeout,
		threshold: uint32(failureThreshold),
	}
}

func (p *circuitPool) get(endpointID string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cb, ok := p.breakers[endpointID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    endpointID,
		Timeout: p.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.threshold
		},
	})
	p.breakers[endpointID] = cb
	return cb
}

// state translates a gobreaker state to the §4.5 CircuitState vocabulary.
func state(s gobreaker.State) domain.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return domain.CircuitOpen
	case gobreaker.StateHalfOpen:
		return domain.CircuitHalfOpen
	default:
		return domain.CircuitClosed
	}
}

// recordOutcome runs a probe/request through the endpoint's breaker so
// gobreaker's internal counters and `next_attempt` timer stay
// authoritative, then mirrors the resulting state onto the persisted
// ServiceEndpoint for selection and observability. The endpoint keeps
// its own consecutive-failure count, because gobreaker clears its
// counters on every state change: a probe that runs and fails adds
// one, a successful probe resets it, and a probe the breaker rejects
// leaves it unchanged.
func (p *circuitPool) recordOutcome(ep *domain.ServiceEndpoint, healthy bool) {
	cb := p.get(ep.ID)
	_, err := cb.Execute(func() (interface{}, error) {
		if healthy {
			return nil, nil
		}
		return nil, errProbeFailed
	})

	switch {
	case err == nil:
		ep.ConsecutiveFails = 0
	case err == errProbeFailed:
		ep.ConsecutiveFails++
	}
	ep.Circuit = state(cb.State())
	if ep.Circuit == domain.CircuitOpen {
		ep.NextAttemptAt = time.Now().Add(p.timeout)
	}
}

var errProbeFailed = probeError{}

type probeError struct{}

func (probeError) Error() string { return "endpoint probe failed" }
