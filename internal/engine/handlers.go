package engine

import (
	"time"

	"github.com/dialdesk/console/internal/history"
	"github.com/dialdesk/console/internal/metrics"
	"github.com/dialdesk/console/internal/socket"
	"github.com/dialdesk/console/internal/store"
	"github.com/dialdesk/console/internal/types"
)

// targetState maps a call event kind to the lifecycle state it requests.
// call:new and call:update carry no target of their own.
func targetState(kind socket.Kind) (types.CallState, bool) {
	switch kind {
	case socket.KindCallRinging:
		return types.CallRinging, true
	case socket.KindCallAnswered:
		return types.CallAnswered, true
	case socket.KindCallHeld:
		return types.CallHeld, true
	case socket.KindCallUnheld:
		return types.CallAnswered, true
	case socket.KindCallTransfer:
		return types.CallTransferring, true
	case socket.KindCallConference:
		return types.CallConferenced, true
	default:
		return "", false
	}
}

// HandleCallEvent applies one call lifecycle event to the store and feeds
// the resulting transition, if any, into the side-effect coordinator
func (e *Engine) HandleCallEvent(kind socket.Kind, ev types.CallEvent) {
	id := ev.UniqueID
	if id == "" {
		// some events address the call by its transient channel alias
		resolved, ok := e.store.ResolveCall(ev.Channel)
		if !ok {
			e.logger.Debug().Str("channel", ev.Channel).Msg("call event without resolvable key dropped")
			metrics.Get().RecordEventDropped()
			return
		}
		id = resolved
	}

	patch := callPatch(ev)
	if state, ok := targetState(kind); ok {
		patch.State = &state
	}
	switch kind {
	case socket.KindCallHeld:
		onHold := true
		patch.OnHold = &onHold
	case socket.KindCallUnheld:
		onHold := false
		patch.OnHold = &onHold
	}

	call, tr := e.store.UpsertCall(id, patch)
	metrics.Get().RecordEventProcessed()
	if tr == nil {
		return
	}

	e.applyCallTransition(call, *tr)
}

// applyCallTransition drives popups, ringtone and the operator's current
// call pointer off a validated transition
func (e *Engine) applyCallTransition(call types.Call, tr store.Transition) {
	forMe := e.isForOperator(call)

	entering := tr.Kind == store.TransitionCallCreated || tr.Kind == store.TransitionCallState

	if entering && tr.To == types.CallRinging && forMe {
		e.store.SetIncomingCall(call.UniqueID)
		e.effects.IncomingRinging(call)
	}

	if tr.Kind == store.TransitionCallState && tr.From == types.CallRinging && tr.To != types.CallRinging {
		e.store.ClearIncomingCall(call.UniqueID)
		e.effects.CallLeftRinging(call.UniqueID)
	}

	if entering && tr.To == types.CallAnswered {
		if forMe {
			e.store.SetCurrentCall(call.UniqueID)
		}
		if call.AgentID != "" {
			// keep the agent back-reference consistent with the call
			callID := call.UniqueID
			busy := types.AgentBusy
			e.store.UpsertAgent(call.AgentID, types.AgentPatch{
				CurrentCallID: &callID,
				Status:        &busy,
			})
		}
	}
}

// HandleCallEnd removes the call, dismisses its UI surfaces and records
// the activity entry. Duplicate or late end events are no-ops.
func (e *Engine) HandleCallEnd(ev types.CallEndEvent) {
	id := ev.UniqueID
	if id == "" {
		resolved, ok := e.store.ResolveCall(ev.Channel)
		if !ok {
			metrics.Get().RecordEventDropped()
			return
		}
		id = resolved
	}

	call, existed := e.store.Call(id)
	tr := e.store.RemoveCall(id)
	metrics.Get().RecordEventProcessed()
	if tr == nil {
		return
	}

	e.effects.CallEnded(id)

	if call.AgentID != "" {
		empty := ""
		e.store.UpsertAgent(call.AgentID, types.AgentPatch{CurrentCallID: &empty})
	}

	cause := ev.Cause
	if cause == "" {
		cause = "normal clearing"
	}
	entry := history.Entry{
		Kind:   history.EntryCallEnded,
		CallID: id,
		Cause:  cause,
	}
	if existed {
		entry.CallerID = call.CallerID
		entry.Duration = call.DurationSeconds
	}
	e.history.Add(entry)
	e.effects.Alert("info", "call ended: "+cause)
}

// HandleAgentEvent applies agent presence and status events
func (e *Engine) HandleAgentEvent(kind socket.Kind, ev types.AgentEvent) {
	if ev.AgentID == "" {
		metrics.Get().RecordEventDropped()
		return
	}

	status := ev.Status
	switch kind {
	case socket.KindAgentLogin:
		if status == "" {
			status = types.AgentAvailable
		}
	case socket.KindAgentLogout:
		status = types.AgentOffline
	case socket.KindAgentPause:
		status = types.AgentAway
	case socket.KindAgentUnpause:
		status = types.AgentAvailable
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	patch := types.AgentPatch{LastStatusChange: &ts}
	if status != "" {
		patch.Status = &status
	}
	if ev.Extension != "" {
		patch.Extension = &ev.Extension
	}
	if ev.Name != "" {
		patch.Name = &ev.Name
	}
	if kind == socket.KindAgentLogout {
		empty := ""
		patch.CurrentCallID = &empty
	}

	agent, tr := e.store.UpsertAgent(ev.AgentID, patch)
	metrics.Get().RecordEventProcessed()
	if tr == nil {
		return
	}

	name := agent.Name
	if name == "" {
		name = agent.ID
	}
	e.effects.AgentStatusChanged(name, tr.ToStatus)
	e.history.Add(history.Entry{
		Kind:    history.EntryAgentStatus,
		AgentID: agent.ID,
		Status:  tr.ToStatus,
	})
}

// HandleQueueUpdate applies a full queue counter update
func (e *Engine) HandleQueueUpdate(ev types.QueueEvent) {
	if ev.ID == "" {
		metrics.Get().RecordEventDropped()
		return
	}

	patch := types.QueuePatch{
		WaitingCalls:    &ev.WaitingCalls,
		AvailableAgents: &ev.AvailableAgents,
	}
	if ev.Name != "" {
		patch.Name = &ev.Name
	}
	if ev.Members != nil {
		patch.Members = ev.Members
	}

	e.store.UpsertQueue(ev.ID, patch)
	metrics.Get().RecordEventProcessed()
}

// HandleQueueMember applies queue membership changes
func (e *Engine) HandleQueueMember(kind socket.Kind, ev types.QueueMemberEvent) {
	if ev.QueueID == "" || ev.AgentID == "" {
		metrics.Get().RecordEventDropped()
		return
	}

	switch kind {
	case socket.KindQueueMemberAdded:
		e.store.AddQueueMember(ev.QueueID, ev.AgentID)
	case socket.KindQueueMemberRemoved:
		e.store.RemoveQueueMember(ev.QueueID, ev.AgentID)
	}
	metrics.Get().RecordEventProcessed()
}

// HandleSystemEvent surfaces alerts and server status notices
func (e *Engine) HandleSystemEvent(kind socket.Kind, ev types.SystemAlert) {
	metrics.Get().RecordEventProcessed()

	if kind == socket.KindSystemStatus {
		e.logger.Info().Str("message", ev.Message).Msg("server status")
		return
	}

	e.effects.Alert(ev.Severity, ev.Message)
	e.history.Add(history.Entry{
		Kind:    history.EntryAlert,
		Message: ev.Message,
	})
}

// callPatch converts the wire event fields into a store patch, carrying
// only what the wire actually provided
func callPatch(ev types.CallEvent) types.CallPatch {
	patch := types.CallPatch{
		BridgedWith: ev.BridgedWith,
		OnHold:      ev.OnHold,
		Recording:   ev.Recording,
	}
	if ev.Channel != "" {
		patch.Channel = &ev.Channel
	}
	if ev.Direction != "" {
		patch.Direction = &ev.Direction
	}
	if ev.CallerID != "" {
		patch.CallerID = &ev.CallerID
	}
	if ev.Destination != "" {
		patch.Destination = &ev.Destination
	}
	if !ev.StartTime.IsZero() {
		patch.StartTime = &ev.StartTime
	}
	if ev.AgentID != "" {
		patch.AgentID = &ev.AgentID
	}
	return patch
}

// isForOperator reports whether a call is addressed to this operator's
// own extension
func (e *Engine) isForOperator(call types.Call) bool {
	ext := e.credential.Extension()
	return ext != "" && call.Destination == ext
}
