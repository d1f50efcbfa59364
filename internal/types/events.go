package types

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame for every message on the streaming channel,
// inbound and outbound: an event name plus a JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	ID      string          `json:"id,omitempty"` // correlation id on outbound commands
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event names
const (
	EventCallNew        = "call:new"
	EventCallUpdate     = "call:update"
	EventCallRinging    = "call:ringing"
	EventCallAnswered   = "call:answered"
	EventCallHeld       = "call:held"
	EventCallUnheld     = "call:unheld"
	EventCallTransfer   = "call:transfer"
	EventCallConference = "call:conference"
	EventCallEnd        = "call:end"

	EventAgentStatus  = "agent:status"
	EventAgentLogin   = "agent:login"
	EventAgentLogout  = "agent:logout"
	EventAgentPause   = "agent:pause"
	EventAgentUnpause = "agent:unpause"

	EventQueueUpdate        = "queue:update"
	EventQueueMemberAdded   = "queue:member_added"
	EventQueueMemberRemoved = "queue:member_removed"

	EventSystemAlert  = "system:alert"
	EventSystemStatus = "system:status"
)

// Outbound event names (operator intents)
const (
	CommandAnswer        = "call:answer"
	CommandReject        = "call:reject"
	CommandHangup        = "call:hangup"
	CommandHold          = "call:hold"
	CommandUnhold        = "call:unhold"
	CommandTransfer      = "call:transfer"
	CommandBlindTransfer = "call:blind_transfer"
	CommandDTMF          = "call:dtmf"
	CommandRecordStart   = "record:start"
	CommandRecordStop    = "record:stop"
	CommandAgentStatus   = "agent:status"
	CommandIdentify      = "agent:identify"
)

// CallEvent is the payload of every call lifecycle event except call:end.
// Fields absent from the wire are zero values; the store merges only what
// is present.
type CallEvent struct {
	UniqueID    string    `json:"uniqueid"`
	Channel     string    `json:"channel,omitempty"`
	Direction   Direction `json:"direction,omitempty"`
	CallerID    string    `json:"caller_id,omitempty"`
	Destination string    `json:"destination,omitempty"`
	StartTime   time.Time `json:"start_time,omitempty"`
	// pointer fields distinguish "absent from the wire" from an
	// explicit clear; absent fields never overwrite stored state
	BridgedWith *string `json:"bridged_with,omitempty"`
	OnHold      *bool   `json:"on_hold,omitempty"`
	Recording   *bool   `json:"recording,omitempty"`
	AgentID     string  `json:"agent_id,omitempty"`
}

// CallEndEvent is the payload of call:end
type CallEndEvent struct {
	UniqueID string `json:"uniqueid"`
	Channel  string `json:"channel,omitempty"`
	Cause    string `json:"cause,omitempty"`
}

// AgentEvent is the payload of all agent:* events
type AgentEvent struct {
	AgentID   string      `json:"agentId"`
	Extension string      `json:"extension,omitempty"`
	Name      string      `json:"name,omitempty"`
	Status    AgentStatus `json:"status,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitempty"`
}

// QueueEvent is the payload of queue:update
type QueueEvent struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	WaitingCalls    int      `json:"waitingCalls"`
	AvailableAgents int      `json:"availableAgents"`
	Members         []string `json:"members,omitempty"`
}

// QueueMemberEvent is the payload of queue:member_added / queue:member_removed
type QueueMemberEvent struct {
	QueueID string `json:"queueId"`
	AgentID string `json:"agentId"`
}

// SystemAlert is the payload of system:alert
type SystemAlert struct {
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
}

// ChannelRef is the payload of channel-addressed outbound commands
type ChannelRef struct {
	Channel string `json:"channel"`
}

// TransferCommand is the payload of call:transfer and call:blind_transfer
type TransferCommand struct {
	Channel   string `json:"channel"`
	Extension string `json:"extension"`
}

// DTMFCommand is the payload of call:dtmf
type DTMFCommand struct {
	Channel string `json:"channel"`
	Digits  string `json:"digits"`
}

// AgentStatusCommand is the payload of the outbound agent:status intent
type AgentStatusCommand struct {
	AgentID   string      `json:"agentId"`
	Status    AgentStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// IdentifyCommand is the payload of agent:identify, sent once per connect
// so the server can target agent-specific events at this operator.
type IdentifyCommand struct {
	AgentID   string `json:"agentId"`
	Extension string `json:"extension"`
}
