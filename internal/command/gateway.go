// Package command turns operator intents into outbound events. Every
// command is gated on channel liveness: while disconnected it fails fast
// with no optimistic mutation, so the local model never drifts on
// commands the server will never see.
package command

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/auth"
	"github.com/dialdesk/console/internal/effects"
	"github.com/dialdesk/console/internal/metrics"
	"github.com/dialdesk/console/internal/socket"
	"github.com/dialdesk/console/internal/store"
	"github.com/dialdesk/console/internal/types"
)

// ErrNotConnected is surfaced to the operator when a command is issued
// while the streaming channel is down
var ErrNotConnected = socket.ErrNotConnected

// ErrUnknownCall is returned when a command references no active call
var ErrUnknownCall = errors.New("command: unknown call")

// Emitter is the slice of the socket client the gateway needs
type Emitter interface {
	Emit(event string, payload any) error
	IsConnected() bool
}

// Gateway issues operator commands with optimistic local patches
type Gateway struct {
	socket     Emitter
	store      *store.Store
	credential *auth.Credential
	effects    *effects.Coordinator
	logger     zerolog.Logger
}

// NewGateway creates a gateway
func NewGateway(emitter Emitter, st *store.Store, credential *auth.Credential, fx *effects.Coordinator, logger zerolog.Logger) *Gateway {
	return &Gateway{
		socket:     emitter,
		store:      st,
		credential: credential,
		effects:    fx,
		logger:     logger.With().Str("component", "command").Logger(),
	}
}

// Answer answers a ringing call. The incoming popup and ringtone clear
// immediately; the authoritative answered event later lands through the
// same upsert path and cannot re-show them.
func (g *Gateway) Answer(callRef string) error {
	id, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}

	g.store.ClearIncomingCall(id)
	g.effects.CallLeftRinging(id)

	return g.emit(types.CommandAnswer, types.ChannelRef{Channel: g.wireRef(call)})
}

// Reject declines a ringing call
func (g *Gateway) Reject(callRef string) error {
	id, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}

	g.store.ClearIncomingCall(id)
	g.effects.CallLeftRinging(id)

	return g.emit(types.CommandReject, types.ChannelRef{Channel: g.wireRef(call)})
}

// Hangup ends an active call
func (g *Gateway) Hangup(callRef string) error {
	_, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}
	return g.emit(types.CommandHangup, types.ChannelRef{Channel: g.wireRef(call)})
}

// Hold puts a call on hold with an optimistic local patch
func (g *Gateway) Hold(callRef string) error {
	id, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}

	onHold := true
	held := types.CallHeld
	g.store.UpsertCall(id, types.CallPatch{OnHold: &onHold, State: &held})

	return g.emit(types.CommandHold, types.ChannelRef{Channel: g.wireRef(call)})
}

// Unhold resumes a held call with an optimistic local patch
func (g *Gateway) Unhold(callRef string) error {
	id, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}

	onHold := false
	answered := types.CallAnswered
	g.store.UpsertCall(id, types.CallPatch{OnHold: &onHold, State: &answered})

	return g.emit(types.CommandUnhold, types.ChannelRef{Channel: g.wireRef(call)})
}

// Transfer starts an attended transfer to extension
func (g *Gateway) Transfer(callRef, extension string) error {
	id, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}

	transferring := types.CallTransferring
	g.store.UpsertCall(id, types.CallPatch{State: &transferring})

	return g.emit(types.CommandTransfer, types.TransferCommand{
		Channel:   g.wireRef(call),
		Extension: extension,
	})
}

// BlindTransfer transfers a call without consultation
func (g *Gateway) BlindTransfer(callRef, extension string) error {
	_, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}
	return g.emit(types.CommandBlindTransfer, types.TransferCommand{
		Channel:   g.wireRef(call),
		Extension: extension,
	})
}

// SendDTMF plays digits into an active call
func (g *Gateway) SendDTMF(callRef, digits string) error {
	_, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}
	return g.emit(types.CommandDTMF, types.DTMFCommand{
		Channel: g.wireRef(call),
		Digits:  digits,
	})
}

// StartRecording starts recording a call with an optimistic flag
func (g *Gateway) StartRecording(callRef string) error {
	id, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}

	recording := true
	g.store.UpsertCall(id, types.CallPatch{Recording: &recording})

	return g.emit(types.CommandRecordStart, types.ChannelRef{Channel: g.wireRef(call)})
}

// StopRecording stops recording a call
func (g *Gateway) StopRecording(callRef string) error {
	id, call, err := g.resolve(callRef)
	if err != nil {
		return err
	}

	recording := false
	g.store.UpsertCall(id, types.CallPatch{Recording: &recording})

	return g.emit(types.CommandRecordStop, types.ChannelRef{Channel: g.wireRef(call)})
}

// UpdateStatus changes the operator's own agent status with an optimistic
// local patch reconciled by the confirming agent:status event
func (g *Gateway) UpdateStatus(status types.AgentStatus) error {
	if !g.socket.IsConnected() {
		metrics.Get().RecordCommandRejected()
		return ErrNotConnected
	}

	agentID := g.credential.AgentID()
	now := time.Now()
	g.store.UpsertAgent(agentID, types.AgentPatch{
		Status:           &status,
		LastStatusChange: &now,
	})

	return g.emit(types.CommandAgentStatus, types.AgentStatusCommand{
		AgentID:   agentID,
		Status:    status,
		Timestamp: now,
	})
}

// resolve gates on connection liveness before anything else, then maps
// the reference to the stable call key. No optimistic patch happens for
// a command that cannot be sent.
func (g *Gateway) resolve(callRef string) (string, types.Call, error) {
	if !g.socket.IsConnected() {
		metrics.Get().RecordCommandRejected()
		return "", types.Call{}, ErrNotConnected
	}

	id, ok := g.store.ResolveCall(callRef)
	if !ok {
		return "", types.Call{}, ErrUnknownCall
	}
	call, _ := g.store.Call(id)
	return id, call, nil
}

// wireRef picks the channel identifier the server addresses calls by
func (g *Gateway) wireRef(call types.Call) string {
	if call.Channel != "" {
		return call.Channel
	}
	return call.UniqueID
}

func (g *Gateway) emit(event string, payload any) error {
	if err := g.socket.Emit(event, payload); err != nil {
		g.logger.Warn().Err(err).Str("event", event).Msg("command emit failed")
		metrics.Get().RecordCommandRejected()
		return err
	}
	metrics.Get().RecordCommandSent()
	g.logger.Debug().Str("event", event).Msg("command sent")
	return nil
}
