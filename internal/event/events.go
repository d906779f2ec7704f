package event

import "time"

// EventType is the kind of a session/system event flowing through the bus.
type EventType string

const (
	// Session lifecycle
	SessionOpened     EventType = "session.opened"
	SessionTerminated EventType = "session.terminated"

	// AI turn loop (§4.1)
	AITurnStarted   EventType = "ai.turn_started"
	AITurnCancelled EventType = "ai.turn_cancelled" // barge-in discard
	AITurnEnded     EventType = "ai.turn_ended"

	// Routing (§4.2)
	TransferRequested EventType = "routing.transfer_requested"
	AgentOffered      EventType = "routing.agent_offered"
	AgentAccepted     EventType = "routing.agent_accepted"
	AgentRejected     EventType = "routing.agent_rejected"
	NoAgentAvailable  EventType = "routing.no_agent_available"

	// Carrier/gateway (§4.5, §6)
	CarrierErrorEvent  EventType = "carrier.error"
	FailoverOccurred   EventType = "gateway.failover"

	// Internal/system
	HandlerPanic EventType = "handler.panic"
)

// SessionEventData carries the session/tenant identifiers common to
// every session-scoped event.
type SessionEventData struct {
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id,omitempty"`
}

// RoutingEventData carries routing-decision context.
type RoutingEventData struct {
	SessionID    string `json:"session_id"`
	TenantID     string `json:"tenant_id,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// ConnectionEvent represents one occurrence on the event bus. The name
// mirrors the bus's original purpose (per-connection dispatch); in
// this domain "connection" is a call Session.
type ConnectionEvent struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	TenantID  string      `json:"tenant_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     error       `json:"error,omitempty"`
}

// NewConnectionEvent creates a new event scoped to sessionID.
func NewConnectionEvent(eventType EventType, sessionID string) *ConnectionEvent {
	return &ConnectionEvent{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

func (e *ConnectionEvent) WithTenantID(tenantID string) *ConnectionEvent {
	e.TenantID = tenantID
	return e
}

func (e *ConnectionEvent) WithData(data interface{}) *ConnectionEvent {
	e.Data = data
	return e
}

func (e *ConnectionEvent) WithError(err error) *ConnectionEvent {
	e.Error = err
	return e
}

func (e *ConnectionEvent) IsError() bool {
	return e.Error != nil
}

// GetRoutingData returns routing event data if available.
func (e *ConnectionEvent) GetRoutingData() (*RoutingEventData, bool) {
	data, ok := e.Data.(*RoutingEventData)
	return data, ok
}
