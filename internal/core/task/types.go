package task

import (
	"context"
)

// TaskType identifies a unit of work fanned out across pods through the
// Bus. Each pod's Callback Scheduler still runs its own due-work tick
// (§4.3); which pod places an outbound call is settled by the
// repository's ClaimForDispatch compare-and-set, not by the bus.
type TaskType string

const (
	// TaskTypeCallbackDispatch makes every subscribed Callback Scheduler
	// run a full due-work tick immediately (Scheduler.HandleTask); the
	// task's RequestID is not used to pick a request.
	TaskTypeCallbackDispatch TaskType = "callback_dispatch"
	// TaskTypeScalingEvaluate names an out-of-cycle autoscaling
	// evaluation (force_evaluation, §4.4). No handler in this module
	// subscribes to it.
	TaskTypeScalingEvaluate TaskType = "scaling_evaluate"
)

// SessionTask represents an asynchronous task payload fanned out
// through the Bus.
type SessionTask struct {
	Type      TaskType `json:"type"`
	TenantID  string   `json:"tenant_id"`
	RequestID string   `json:"request_id"` // callback request id or scaling-policy tenant id
	Payload   []byte   `json:"payload"`    // JSON payload of the original request
}

// Bus defines the interface for the task bus
type Bus interface {
	Publish(ctx context.Context, task SessionTask) error
	Subscribe(ctx context.Context, handler func(SessionTask)) error
}
