package store

import "github.com/dialdesk/console/internal/types"

// TransitionKind classifies a store mutation for subscribers
type TransitionKind string

const (
	TransitionCallCreated    TransitionKind = "call_created"
	TransitionCallState      TransitionKind = "call_state"
	TransitionCallRemoved    TransitionKind = "call_removed"
	TransitionAgentStatus    TransitionKind = "agent_status"
	TransitionQueueUpdated   TransitionKind = "queue_updated"
	TransitionIncomingSet    TransitionKind = "incoming_set"
	TransitionIncomingClear  TransitionKind = "incoming_cleared"
	TransitionCurrentCallSet TransitionKind = "current_call_set"
)

// Transition describes a validated change of canonical state. Side effects
// key off transitions, never off raw wire events, so a duplicate event that
// changes nothing produces no transition and no effect.
type Transition struct {
	Kind TransitionKind

	CallID string
	From   types.CallState
	To     types.CallState

	AgentID    string
	FromStatus types.AgentStatus
	ToStatus   types.AgentStatus

	QueueID string
}
