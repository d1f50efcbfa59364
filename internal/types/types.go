package types

import "time"

// CallState represents the lifecycle state of a call
type CallState string

const (
	CallRinging      CallState = "ringing"
	CallAnswered     CallState = "answered"
	CallHeld         CallState = "held"
	CallTransferring CallState = "transferring"
	CallConferenced  CallState = "conferenced"
	CallEnded        CallState = "ended" // terminal, call leaves the active set
)

// Direction indicates who originated a call
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Call represents a call in the active set. UniqueID is the stable key
// issued by the telephony backend; Channel is a transient alias that may
// reference the same call and must never be used as a second key.
type Call struct {
	UniqueID        string    `json:"uniqueid"`
	Channel         string    `json:"channel,omitempty"`
	Direction       Direction `json:"direction,omitempty"`
	CallerID        string    `json:"caller_id,omitempty"`
	Destination     string    `json:"destination,omitempty"`
	State           CallState `json:"state"`
	StartTime       time.Time `json:"start_time,omitempty"`
	DurationSeconds int64     `json:"duration_seconds"` // derived at read time, never taken from the wire
	BridgedWith     string    `json:"bridged_with,omitempty"`
	OnHold          bool      `json:"on_hold"`
	Recording       bool      `json:"recording"`
	AgentID         string    `json:"agent_id,omitempty"`
}

// CallPatch is a field-level merge applied onto an existing call.
// Nil fields leave the current value untouched, so applying the same
// patch twice yields the same call.
type CallPatch struct {
	Channel     *string
	Direction   *Direction
	CallerID    *string
	Destination *string
	State       *CallState
	StartTime   *time.Time
	BridgedWith *string
	OnHold      *bool
	Recording   *bool
	AgentID     *string
}

// AgentStatus represents the availability of an agent
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentAway      AgentStatus = "away"
	AgentOffline   AgentStatus = "offline"
)

// Agent represents a call center agent
type Agent struct {
	ID               string      `json:"id"`
	Extension        string      `json:"extension,omitempty"`
	Name             string      `json:"name,omitempty"`
	Status           AgentStatus `json:"status"`
	CurrentCallID    string      `json:"currentCallId,omitempty"` // back-reference to an active call owned by this agent
	LastStatusChange time.Time   `json:"lastStatusChange,omitempty"`
}

// AgentPatch is a field-level merge applied onto an existing agent
type AgentPatch struct {
	Extension        *string
	Name             *string
	Status           *AgentStatus
	CurrentCallID    *string
	LastStatusChange *time.Time
}

// Queue represents a call queue and its live counters
type Queue struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	WaitingCalls    int      `json:"waitingCalls"`
	AvailableAgents int      `json:"availableAgents"`
	Members         []string `json:"members,omitempty"` // agent ids; may reference agents no longer present
}

// QueuePatch is a field-level merge applied onto an existing queue
type QueuePatch struct {
	Name            *string
	WaitingCalls    *int
	AvailableAgents *int
	Members         []string
}

// Operator identifies the logged-in operator this console acts for.
// Calls ringing at the operator's extension raise the incoming-call popup.
type Operator struct {
	AgentID   string
	Extension string
}

// ConnectionStatus is the streaming channel state surfaced to the UI
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusUnreachable  ConnectionStatus = "unreachable" // reconnect attempts exhausted
)
