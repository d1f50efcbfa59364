// Package lifecycle validates call state transitions against a fixed
// transition table. The streaming channel is at-least-once and unordered,
// so duplicate and out-of-order events are expected; an edge not in the
// table is absorbed as a no-op instead of corrupting the recorded state.
package lifecycle

import "github.com/dialdesk/console/internal/types"

// validEdges lists, per current state, the states a call may move to.
// Every state may end; ended is terminal.
var validEdges = map[types.CallState][]types.CallState{
	types.CallRinging:      {types.CallAnswered, types.CallEnded},
	types.CallAnswered:     {types.CallHeld, types.CallTransferring, types.CallConferenced, types.CallEnded},
	types.CallHeld:         {types.CallAnswered, types.CallEnded},
	types.CallTransferring: {types.CallAnswered, types.CallEnded},
	types.CallConferenced:  {types.CallAnswered, types.CallEnded},
	types.CallEnded:        {},
}

// CanTransition reports whether a call in state from may move to state to.
// A transition to the current state is allowed and treated as idempotent.
func CanTransition(from, to types.CallState) bool {
	if from == to {
		return from != types.CallEnded
	}
	for _, next := range validEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Apply returns the state a call should record after an event naming
// target, and whether the edge was accepted. A rejected edge leaves the
// last known-good state in place.
func Apply(current, target types.CallState) (types.CallState, bool) {
	if !CanTransition(current, target) {
		return current, false
	}
	return target, true
}

// Initial is the state assigned to a call created by its first streaming
// event when that event carries no state of its own.
func Initial() types.CallState {
	return types.CallRinging
}

// Terminal reports whether state is ended
func Terminal(state types.CallState) bool {
	return state == types.CallEnded
}
