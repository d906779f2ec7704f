package autoscale

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	currentInstancesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voicecore",
		Subsystem: "autoscale",
		Name:      "current_instances",
		Help:      "Instances the controller believes are currently running, per tenant.",
	}, []string{"tenant_id"})

	utilizationGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voicecore",
		Subsystem: "autoscale",
		Name:      "utilization_ratio",
		Help:      "current_concurrent_calls / effective_max_capacity at last evaluation.",
	}, []string{"tenant_id"})

	effectiveCapacityGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voicecore",
		Subsystem: "autoscale",
		Name:      "effective_capacity",
		Help:      "Nominal capacity after the system-stress factor is applied.",
	}, []string{"tenant_id"})

	scalingActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicecore",
		Subsystem: "autoscale",
		Name:      "actions_total",
		Help:      "Count of evaluations by resulting action.",
	}, []string{"tenant_id", "action"})
)

func recordEvaluation(tenantID string, utilization, capacity float64, d Decision) {
	utilizationGauge.WithLabelValues(tenantID).Set(utilization)
	effectiveCapacityGauge.WithLabelValues(tenantID).Set(capacity)
	currentInstancesGauge.WithLabelValues(tenantID).Set(float64(d.To))
	scalingActionsTotal.WithLabelValues(tenantID, string(d.Action)).Inc()
}
