package autoscale

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

// TenantCallCounter is the subset of internal/services/call.Service
// the Controller needs to read live concurrency from, kept narrow so
// this package never imports the call service directly.
type TenantCallCounter interface {
	CountForTenant(tenantID string) int
}

// HostConcurrencyProvider implements ConcurrencyProvider against this
// pod's live session registry and the host's own CPU/memory counters
// (§4.4 "system_stress ... CPU/memory utilization of the host").
type HostConcurrencyProvider struct {
	calls TenantCallCounter
}

func NewHostConcurrencyProvider(calls TenantCallCounter) *HostConcurrencyProvider {
	return &HostConcurrencyProvider{calls: calls}
}

func (p *HostConcurrencyProvider) CurrentConcurrentCalls(ctx context.Context, tenantID string) (int, error) {
	return p.calls.CountForTenant(tenantID), nil
}

// SystemStress samples instantaneous CPU utilization (a short blocking
// window, per gopsutil's own recommendation for a meaningful single
// reading) and current memory utilization.
func (p *HostConcurrencyProvider) SystemStress(ctx context.Context) (domain.SystemStress, error) {
	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return domain.SystemStress{}, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return domain.SystemStress{}, err
	}

	return domain.SystemStress{CPUPercent: cpuPct, MemoryPercent: vm.UsedPercent}, nil
}
