// Package store holds the canonical in-memory state of calls, agents and
// queues. It is the only shared mutable resource in the engine: snapshot
// ingestion, streaming events and optimistic command patches all flow
// through the same merge operations here, and readers always get copies.
package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/lifecycle"
	"github.com/dialdesk/console/internal/metrics"
	"github.com/dialdesk/console/internal/types"
)

// subscriberBuffer is the per-subscriber transition channel depth.
// Slow subscribers drop transitions rather than block event processing.
const subscriberBuffer = 64

// Store is the entity store for all three entity kinds
type Store struct {
	mu sync.RWMutex

	calls  map[string]*types.Call
	agents map[string]*types.Agent
	queues map[string]*types.Queue

	// channel alias -> uniqueid; a transient channel identifier must
	// resolve to the stable call key, never act as a second key
	channels map[string]string

	// uniqueids of calls that already ended; late events for these keys
	// are ignored instead of resurrecting the call
	ended map[string]struct{}

	// operator-facing pointers, mirrors of the UI overlay state
	incomingCallID string
	currentCallID  string

	subs   []chan Transition
	logger zerolog.Logger
}

// New creates an empty store
func New(logger zerolog.Logger) *Store {
	return &Store{
		calls:    make(map[string]*types.Call),
		agents:   make(map[string]*types.Agent),
		queues:   make(map[string]*types.Queue),
		channels: make(map[string]string),
		ended:    make(map[string]struct{}),
		logger:   logger.With().Str("component", "store").Logger(),
	}
}

// Subscribe returns a channel receiving every transition the store emits.
// The channel is buffered; transitions are dropped, not queued, when the
// subscriber falls behind.
func (s *Store) Subscribe() <-chan Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Transition, subscriberBuffer)
	s.subs = append(s.subs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel
func (s *Store) Unsubscribe(sub <-chan Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ch := range s.subs {
		if ch == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// notify is called with s.mu held
func (s *Store) notify(tr Transition) {
	for _, ch := range s.subs {
		select {
		case ch <- tr:
		default:
		}
	}
}

// ResolveCall maps a call reference, either a uniqueid or a transient
// channel alias, to the stable call key. Returns false when the reference
// matches nothing in the active set.
func (s *Store) ResolveCall(ref string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.calls[ref]; ok {
		return ref, true
	}
	if id, ok := s.channels[ref]; ok {
		return id, true
	}
	return "", false
}

// UpsertCall merges patch onto the call for id, creating it when absent.
// A state change in the patch is validated against the lifecycle table;
// an invalid edge is dropped with a diagnostic and the rest of the patch
// still applies. Returns the resulting call and a transition when the
// upsert created the call or moved its state.
func (s *Store) UpsertCall(id string, patch types.CallPatch) (types.Call, *Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.ended[id]; gone {
		s.logger.Debug().Str("uniqueid", id).Msg("event for ended call ignored")
		return types.Call{UniqueID: id, State: types.CallEnded}, nil
	}

	call, exists := s.calls[id]
	var tr *Transition
	if !exists {
		state := lifecycle.Initial()
		if patch.State != nil && *patch.State != types.CallEnded {
			state = *patch.State
		}
		call = &types.Call{UniqueID: id, State: state}
		s.calls[id] = call
		tr = &Transition{Kind: TransitionCallCreated, CallID: id, To: state}
	}

	s.mergeCall(call, patch)

	if patch.State != nil && exists {
		next, ok := lifecycle.Apply(call.State, *patch.State)
		if !ok {
			metrics.Get().RecordInvalidTransition()
			s.logger.Debug().
				Str("uniqueid", id).
				Str("from", string(call.State)).
				Str("to", string(*patch.State)).
				Msg("invalid call transition dropped")
		} else if next != call.State {
			tr = &Transition{Kind: TransitionCallState, CallID: id, From: call.State, To: next}
			call.State = next
		}
	}

	if call.Channel != "" {
		s.channels[call.Channel] = id
	}

	out := s.copyCall(call)
	if tr != nil {
		s.notify(*tr)
	}
	return out, tr
}

// mergeCall applies the non-state fields of patch; held with s.mu
func (s *Store) mergeCall(call *types.Call, patch types.CallPatch) {
	if patch.Channel != nil {
		call.Channel = *patch.Channel
	}
	if patch.Direction != nil {
		call.Direction = *patch.Direction
	}
	if patch.CallerID != nil {
		call.CallerID = *patch.CallerID
	}
	if patch.Destination != nil {
		call.Destination = *patch.Destination
	}
	if patch.StartTime != nil {
		call.StartTime = *patch.StartTime
	}
	if patch.BridgedWith != nil {
		call.BridgedWith = *patch.BridgedWith
	}
	if patch.OnHold != nil {
		call.OnHold = *patch.OnHold
	}
	if patch.Recording != nil {
		call.Recording = *patch.Recording
	}
	if patch.AgentID != nil {
		call.AgentID = *patch.AgentID
	}
}

// RemoveCall takes a call out of the active set and remembers its key so
// late events cannot resurrect it. Removing an unknown or already-removed
// call is a no-op.
func (s *Store) RemoveCall(id string) *Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[id]
	if !ok {
		s.ended[id] = struct{}{}
		return nil
	}

	from := call.State
	delete(s.calls, id)
	if call.Channel != "" {
		delete(s.channels, call.Channel)
	}
	s.ended[id] = struct{}{}

	// a removed call can no longer be anyone's bridge peer
	for _, other := range s.calls {
		if other.BridgedWith == id {
			other.BridgedWith = ""
		}
	}

	if s.incomingCallID == id {
		s.incomingCallID = ""
		s.notify(Transition{Kind: TransitionIncomingClear, CallID: id})
	}
	if s.currentCallID == id {
		s.currentCallID = ""
	}

	tr := Transition{Kind: TransitionCallRemoved, CallID: id, From: from, To: types.CallEnded}
	s.notify(tr)
	return &tr
}

// UpsertAgent merges patch onto the agent for id, creating it when absent
func (s *Store) UpsertAgent(id string, patch types.AgentPatch) (types.Agent, *Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, exists := s.agents[id]
	if !exists {
		agent = &types.Agent{ID: id, Status: types.AgentOffline}
		s.agents[id] = agent
	}

	var tr *Transition
	if patch.Status != nil && (*patch.Status != agent.Status || !exists) {
		tr = &Transition{
			Kind:       TransitionAgentStatus,
			AgentID:    id,
			FromStatus: agent.Status,
			ToStatus:   *patch.Status,
		}
	}

	if patch.Extension != nil {
		agent.Extension = *patch.Extension
	}
	if patch.Name != nil {
		agent.Name = *patch.Name
	}
	if patch.Status != nil {
		agent.Status = *patch.Status
	}
	if patch.LastStatusChange != nil {
		agent.LastStatusChange = *patch.LastStatusChange
	}
	if patch.CurrentCallID != nil {
		agent.CurrentCallID = *patch.CurrentCallID
		// at most one agent may claim a call
		if *patch.CurrentCallID != "" {
			for otherID, other := range s.agents {
				if otherID != id && other.CurrentCallID == *patch.CurrentCallID {
					other.CurrentCallID = ""
				}
			}
		}
	}

	out := *agent
	if tr != nil {
		s.notify(*tr)
	}
	return out, tr
}

// UpsertQueue merges patch onto the queue for id, creating it when absent.
// A non-nil Members slice replaces the membership wholesale.
func (s *Store) UpsertQueue(id string, patch types.QueuePatch) types.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, exists := s.queues[id]
	if !exists {
		queue = &types.Queue{ID: id}
		s.queues[id] = queue
	}

	if patch.Name != nil {
		queue.Name = *patch.Name
	}
	if patch.WaitingCalls != nil {
		queue.WaitingCalls = *patch.WaitingCalls
	}
	if patch.AvailableAgents != nil {
		queue.AvailableAgents = *patch.AvailableAgents
	}
	if patch.Members != nil {
		queue.Members = append([]string(nil), patch.Members...)
	}

	s.notify(Transition{Kind: TransitionQueueUpdated, QueueID: id})
	return s.copyQueue(queue)
}

// AddQueueMember adds an agent to a queue's membership; idempotent
func (s *Store) AddQueueMember(queueID, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		queue = &types.Queue{ID: queueID}
		s.queues[queueID] = queue
	}
	for _, m := range queue.Members {
		if m == agentID {
			return
		}
	}
	queue.Members = append(queue.Members, agentID)
	s.notify(Transition{Kind: TransitionQueueUpdated, QueueID: queueID})
}

// RemoveQueueMember removes an agent from a queue's membership; unknown
// queues and members are tolerated
func (s *Store) RemoveQueueMember(queueID, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return
	}
	for i, m := range queue.Members {
		if m == agentID {
			queue.Members = append(queue.Members[:i], queue.Members[i+1:]...)
			s.notify(Transition{Kind: TransitionQueueUpdated, QueueID: queueID})
			return
		}
	}
}

// ReplaceCalls swaps the entire active call set for a snapshot. Calls in
// the previous set but absent from the snapshot are dropped, with a
// removal transition each so stale UI surfaces are dismissed. Snapshot
// entries that already ended are not admitted.
func (s *Store) ReplaceCalls(calls []types.Call) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*types.Call, len(calls))
	channels := make(map[string]string, len(calls))
	for i := range calls {
		call := calls[i]
		if call.UniqueID == "" || call.State == types.CallEnded {
			continue
		}
		if call.State == "" {
			call.State = lifecycle.Initial()
		}
		next[call.UniqueID] = &call
		if call.Channel != "" {
			channels[call.Channel] = call.UniqueID
		}
	}

	for id, old := range s.calls {
		if _, kept := next[id]; !kept {
			s.notify(Transition{Kind: TransitionCallRemoved, CallID: id, From: old.State, To: types.CallEnded})
			if s.incomingCallID == id {
				s.incomingCallID = ""
				s.notify(Transition{Kind: TransitionIncomingClear, CallID: id})
			}
			if s.currentCallID == id {
				s.currentCallID = ""
			}
		}
	}
	for id, call := range next {
		if _, had := s.calls[id]; !had {
			s.notify(Transition{Kind: TransitionCallCreated, CallID: id, To: call.State})
		}
	}

	s.calls = next
	s.channels = channels
	// the snapshot is ground truth, forget old tombstones
	s.ended = make(map[string]struct{})
}

// ReplaceAgents swaps the entire agent mapping for a snapshot
func (s *Store) ReplaceAgents(agents []types.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*types.Agent, len(agents))
	for i := range agents {
		agent := agents[i]
		if agent.ID == "" {
			continue
		}
		if agent.Status == "" {
			agent.Status = types.AgentOffline
		}
		next[agent.ID] = &agent
	}
	s.agents = next
}

// ReplaceQueues swaps the entire queue mapping for a snapshot
func (s *Store) ReplaceQueues(queues []types.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*types.Queue, len(queues))
	for i := range queues {
		queue := queues[i]
		if queue.ID == "" {
			continue
		}
		next[queue.ID] = &queue
	}
	s.queues = next
}

// SetIncomingCall marks a call as the operator's incoming-call overlay.
// Only one overlay exists at a time; a second concurrent ring replaces
// the first (last write wins).
func (s *Store) SetIncomingCall(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.incomingCallID == id {
		return
	}
	s.incomingCallID = id
	s.notify(Transition{Kind: TransitionIncomingSet, CallID: id})
}

// ClearIncomingCall clears the overlay if id matches the call it shows.
// An empty id clears unconditionally.
func (s *Store) ClearIncomingCall(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.incomingCallID == "" || (id != "" && s.incomingCallID != id) {
		return false
	}
	cleared := s.incomingCallID
	s.incomingCallID = ""
	s.notify(Transition{Kind: TransitionIncomingClear, CallID: cleared})
	return true
}

// IncomingCall returns the call shown in the incoming-call overlay
func (s *Store) IncomingCall() (types.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.incomingCallID == "" {
		return types.Call{}, false
	}
	call, ok := s.calls[s.incomingCallID]
	if !ok {
		return types.Call{}, false
	}
	return s.copyCall(call), true
}

// SetCurrentCall marks the call the operator is currently on
func (s *Store) SetCurrentCall(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentCallID == id {
		return
	}
	s.currentCallID = id
	s.notify(Transition{Kind: TransitionCurrentCallSet, CallID: id})
}

// CurrentCall returns the operator's current call
func (s *Store) CurrentCall() (types.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentCallID == "" {
		return types.Call{}, false
	}
	call, ok := s.calls[s.currentCallID]
	if !ok {
		return types.Call{}, false
	}
	return s.copyCall(call), true
}

// Call returns a copy of the call for id
func (s *Store) Call(id string) (types.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	call, ok := s.calls[id]
	if !ok {
		return types.Call{}, false
	}
	return s.copyCall(call), true
}

// Calls returns copies of every active call
func (s *Store) Calls() []types.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Call, 0, len(s.calls))
	for _, call := range s.calls {
		out = append(out, s.copyCall(call))
	}
	return out
}

// Agent returns a copy of the agent for id
func (s *Store) Agent(id string) (types.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return types.Agent{}, false
	}
	return *agent, true
}

// Agents returns copies of every known agent
func (s *Store) Agents() []types.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		out = append(out, *agent)
	}
	return out
}

// Queue returns a copy of the queue for id
func (s *Store) Queue(id string) (types.Queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue, ok := s.queues[id]
	if !ok {
		return types.Queue{}, false
	}
	return s.copyQueue(queue), true
}

// Queues returns copies of every known queue
func (s *Store) Queues() []types.Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Queue, 0, len(s.queues))
	for _, queue := range s.queues {
		out = append(out, s.copyQueue(queue))
	}
	return out
}

// copyCall copies a call and derives its duration from the recorded start
// time; the wire value is never trusted. Held with s.mu.
func (s *Store) copyCall(call *types.Call) types.Call {
	out := *call
	if !out.StartTime.IsZero() {
		out.DurationSeconds = int64(time.Since(out.StartTime).Seconds())
		if out.DurationSeconds < 0 {
			out.DurationSeconds = 0
		}
	}
	return out
}

func (s *Store) copyQueue(queue *types.Queue) types.Queue {
	out := *queue
	out.Members = append([]string(nil), queue.Members...)
	return out
}
