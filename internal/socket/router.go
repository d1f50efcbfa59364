package socket

import (
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/types"
)

// Kind is the closed set of recognized inbound event kinds. Wire names
// outside the set fall into KindUnknown and are dropped, never fatal.
type Kind int

const (
	KindUnknown Kind = iota

	KindCallNew
	KindCallUpdate
	KindCallRinging
	KindCallAnswered
	KindCallHeld
	KindCallUnheld
	KindCallTransfer
	KindCallConference
	KindCallEnd

	KindAgentStatus
	KindAgentLogin
	KindAgentLogout
	KindAgentPause
	KindAgentUnpause

	KindQueueUpdate
	KindQueueMemberAdded
	KindQueueMemberRemoved

	KindSystemAlert
	KindSystemStatus
)

var kindByName = map[string]Kind{
	types.EventCallNew:        KindCallNew,
	types.EventCallUpdate:     KindCallUpdate,
	types.EventCallRinging:    KindCallRinging,
	types.EventCallAnswered:   KindCallAnswered,
	types.EventCallHeld:       KindCallHeld,
	types.EventCallUnheld:     KindCallUnheld,
	types.EventCallTransfer:   KindCallTransfer,
	types.EventCallConference: KindCallConference,
	types.EventCallEnd:        KindCallEnd,

	types.EventAgentStatus:  KindAgentStatus,
	types.EventAgentLogin:   KindAgentLogin,
	types.EventAgentLogout:  KindAgentLogout,
	types.EventAgentPause:   KindAgentPause,
	types.EventAgentUnpause: KindAgentUnpause,

	types.EventQueueUpdate:        KindQueueUpdate,
	types.EventQueueMemberAdded:   KindQueueMemberAdded,
	types.EventQueueMemberRemoved: KindQueueMemberRemoved,

	types.EventSystemAlert:  KindSystemAlert,
	types.EventSystemStatus: KindSystemStatus,
}

// Classify maps a wire event name to its kind
func Classify(event string) Kind {
	if kind, ok := kindByName[event]; ok {
		return kind
	}
	return KindUnknown
}

// Handler receives fully-decoded inbound events. Dispatch is synchronous:
// one event is handled to completion before the next is read.
type Handler interface {
	HandleCallEvent(kind Kind, ev types.CallEvent)
	HandleCallEnd(ev types.CallEndEvent)
	HandleAgentEvent(kind Kind, ev types.AgentEvent)
	HandleQueueUpdate(ev types.QueueEvent)
	HandleQueueMember(kind Kind, ev types.QueueMemberEvent)
	HandleSystemEvent(kind Kind, ev types.SystemAlert)
}

// Router decodes envelopes into typed events and dispatches them
type Router struct {
	handler Handler
	logger  zerolog.Logger

	dispatched atomic.Int64
	dropped    atomic.Int64
}

// NewRouter creates a router delivering to handler
func NewRouter(handler Handler, logger zerolog.Logger) *Router {
	return &Router{
		handler: handler,
		logger:  logger.With().Str("component", "router").Logger(),
	}
}

// Dispatch routes one envelope. Unknown event names and undecodable
// payloads are logged and dropped.
func (r *Router) Dispatch(env types.Envelope) {
	kind := Classify(env.Event)

	switch kind {
	case KindCallNew, KindCallUpdate, KindCallRinging, KindCallAnswered,
		KindCallHeld, KindCallUnheld, KindCallTransfer, KindCallConference:
		var ev types.CallEvent
		if !r.decode(env, &ev) {
			return
		}
		r.handler.HandleCallEvent(kind, ev)

	case KindCallEnd:
		var ev types.CallEndEvent
		if !r.decode(env, &ev) {
			return
		}
		r.handler.HandleCallEnd(ev)

	case KindAgentStatus, KindAgentLogin, KindAgentLogout, KindAgentPause, KindAgentUnpause:
		var ev types.AgentEvent
		if !r.decode(env, &ev) {
			return
		}
		r.handler.HandleAgentEvent(kind, ev)

	case KindQueueUpdate:
		var ev types.QueueEvent
		if !r.decode(env, &ev) {
			return
		}
		r.handler.HandleQueueUpdate(ev)

	case KindQueueMemberAdded, KindQueueMemberRemoved:
		var ev types.QueueMemberEvent
		if !r.decode(env, &ev) {
			return
		}
		r.handler.HandleQueueMember(kind, ev)

	case KindSystemAlert, KindSystemStatus:
		var ev types.SystemAlert
		if !r.decode(env, &ev) {
			return
		}
		r.handler.HandleSystemEvent(kind, ev)

	case KindUnknown:
		r.dropped.Add(1)
		r.logger.Debug().Str("event", env.Event).Msg("unknown event dropped")
		return
	}

	r.dispatched.Add(1)
}

// Dispatched returns how many envelopes reached a handler
func (r *Router) Dispatched() int64 {
	return r.dispatched.Load()
}

// Dropped returns how many envelopes were unknown or undecodable
func (r *Router) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Router) decode(env types.Envelope, out any) bool {
	if len(env.Payload) == 0 {
		// events like system:status may carry no payload at all
		return true
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		r.dropped.Add(1)
		r.logger.Warn().Err(err).Str("event", env.Event).Msg("undecodable payload dropped")
		return false
	}
	return true
}
