package routing

import (
	"context"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
)

// OfferState is one candidate's position in a TransferAttempt (§4.2
// "Transfer attempt state machine").
type OfferState string

const (
	OfferOffered   OfferState = "offered"
	OfferAccepted  OfferState = "accepted"
	OfferRejected  OfferState = "rejected"
	OfferTimedOut  OfferState = "timed_out"
)

// TransferAttempt drives offered → {accepted | rejected | timed_out}
// → (if not accepted) next_candidate, bounded by MaxAttempts.
type TransferAttempt struct {
	engine      *Engine
	criteria    Criteria
	maxAttempts int

	attempts int
	current  OfferState
	agentID  string
}

func NewTransferAttempt(engine *Engine, criteria Criteria, maxAttempts int) *TransferAttempt {
	return &TransferAttempt{engine: engine, criteria: criteria, maxAttempts: maxAttempts}
}

// Offer reserves the next candidate and moves the attempt to
// "offered". Returns apierr.NotFound (mapped by the Orchestrator to
// NoAgentAvailable) once MaxAttempts is exhausted.
func (t *TransferAttempt) Offer(ctx context.Context, now time.Time) (agentID string, err error) {
	if t.attempts >= t.maxAttempts {
		return "", apierr.New(apierr.NotFound, "no agent available: transfer attempts exhausted")
	}
	agentID, err = t.engine.ReserveBest(ctx, t.criteria, now)
	if err != nil {
		return "", err
	}
	t.attempts++
	t.current = OfferOffered
	t.agentID = agentID
	return agentID, nil
}

// Resolve records the agent's response to the current offer. A
// rejection or timeout releases the slot and leaves the attempt ready
// for the caller to call Offer again for the next candidate; accepted
// is terminal.
func (t *TransferAttempt) Resolve(ctx context.Context, outcome OfferState) error {
	if t.current != OfferOffered {
		return apierr.New(apierr.Conflict, "no outstanding offer to resolve")
	}
	switch outcome {
	case OfferAccepted:
		t.current = OfferAccepted
		return nil
	case OfferRejected, OfferTimedOut:
		t.current = outcome
		return t.engine.dir.Release(ctx, t.agentID)
	default:
		return apierr.New(apierr.Validation, "invalid offer outcome")
	}
}

func (t *TransferAttempt) Attempts() int       { return t.attempts }
func (t *TransferAttempt) State() OfferState   { return t.current }
func (t *TransferAttempt) AgentID() string     { return t.agentID }
func (t *TransferAttempt) Exhausted() bool     { return t.attempts >= t.maxAttempts }
