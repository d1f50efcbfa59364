// Package effects maps validated state transitions to user-visible side
// effects: ringtone, incoming-call popup, transient notifications. Effects
// key off transitions, not raw wire events, and each (call, effect) pair
// is active at most once, so duplicate delivery never stacks a second
// ringtone or toast.
package effects

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/types"
)

// Kind identifies an effect channel
type Kind string

const (
	KindRingtone Kind = "ringtone"
	KindPopup    Kind = "popup"
)

// Sink receives the effects. The console ships a logging sink; a real UI
// layer plugs in its own.
type Sink interface {
	StartRingtone(callID string)
	StopRingtone(callID string)
	ShowIncomingPopup(call types.Call)
	DismissIncomingPopup(callID string)
	Notify(severity, message string)
}

type effectKey struct {
	callID string
	kind   Kind
}

// Coordinator tracks active effects and the popup auto-clear timer
type Coordinator struct {
	mu sync.Mutex

	sink         Sink
	popupTimeout time.Duration
	logger       zerolog.Logger

	active     map[effectKey]struct{}
	popupTimer *time.Timer
	popupCall  string // call the visible popup belongs to

	// onPopupTimeout clears the overlay state owned elsewhere when the
	// 30s window elapses with no answer, reject or end
	onPopupTimeout func(callID string)
}

// New creates a coordinator delivering to sink
func New(sink Sink, popupTimeout time.Duration, logger zerolog.Logger) *Coordinator {
	if popupTimeout <= 0 {
		popupTimeout = 30 * time.Second
	}
	return &Coordinator{
		sink:         sink,
		popupTimeout: popupTimeout,
		logger:       logger.With().Str("component", "effects").Logger(),
		active:       make(map[effectKey]struct{}),
	}
}

// OnPopupTimeout registers the callback fired when an unanswered popup
// expires
func (c *Coordinator) OnPopupTimeout(fn func(callID string)) {
	c.mu.Lock()
	c.onPopupTimeout = fn
	c.mu.Unlock()
}

// IncomingRinging handles a call entering ringing at the operator's own
// extension: start the ringtone and show the popup. A second concurrent
// ring replaces the visible popup rather than queueing behind it.
func (c *Coordinator) IncomingRinging(call types.Call) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := effectKey{call.UniqueID, KindPopup}
	if _, dup := c.active[key]; dup {
		return
	}

	if c.popupCall != "" && c.popupCall != call.UniqueID {
		// last write wins: the newer ring takes the overlay
		c.stopLocked(c.popupCall)
		c.sink.Notify("info", fmt.Sprintf("another call waiting from %s", call.CallerID))
	}

	c.active[key] = struct{}{}
	c.popupCall = call.UniqueID
	c.sink.ShowIncomingPopup(call)

	ringKey := effectKey{call.UniqueID, KindRingtone}
	if _, dup := c.active[ringKey]; !dup {
		c.active[ringKey] = struct{}{}
		c.sink.StartRingtone(call.UniqueID)
	}

	if c.popupTimer != nil {
		c.popupTimer.Stop()
	}
	id := call.UniqueID
	c.popupTimer = time.AfterFunc(c.popupTimeout, func() { c.expirePopup(id) })
}

// CallLeftRinging handles any exit from ringing for a call: answer,
// reject, remote end, or snapshot removal. Idempotent.
func (c *Coordinator) CallLeftRinging(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(callID)
}

// CallEnded dismisses every surface tied to a call
func (c *Coordinator) CallEnded(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(callID)
}

// AgentStatusChanged raises a transient notification for a peer agent's
// status change
func (c *Coordinator) AgentStatusChanged(name string, status types.AgentStatus) {
	if name == "" {
		return
	}
	c.sink.Notify("info", fmt.Sprintf("%s is now %s", name, status))
}

// Alert surfaces a system alert
func (c *Coordinator) Alert(severity, message string) {
	if severity == "" {
		severity = "info"
	}
	c.sink.Notify(severity, message)
}

// ConnectionChanged surfaces connection status flips to the operator
func (c *Coordinator) ConnectionChanged(status types.ConnectionStatus) {
	switch status {
	case types.StatusConnected:
		c.sink.Notify("info", "connected to call server")
	case types.StatusDisconnected:
		c.sink.Notify("error", "disconnected from call server")
	case types.StatusUnreachable:
		c.sink.Notify("error", "call server unreachable, giving up")
	}
}

// Stop cancels any pending timer; used on engine shutdown
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.popupTimer != nil {
		c.popupTimer.Stop()
		c.popupTimer = nil
	}
}

// stopLocked retires the popup and ringtone for callID; held with c.mu
func (c *Coordinator) stopLocked(callID string) {
	popKey := effectKey{callID, KindPopup}
	if _, ok := c.active[popKey]; ok {
		delete(c.active, popKey)
		c.sink.DismissIncomingPopup(callID)
	}
	ringKey := effectKey{callID, KindRingtone}
	if _, ok := c.active[ringKey]; ok {
		delete(c.active, ringKey)
		c.sink.StopRingtone(callID)
	}
	if c.popupCall == callID {
		c.popupCall = ""
		if c.popupTimer != nil {
			c.popupTimer.Stop()
			c.popupTimer = nil
		}
	}
}

// expirePopup fires when the popup timeout elapses first
func (c *Coordinator) expirePopup(callID string) {
	c.mu.Lock()
	if c.popupCall != callID {
		// a later transition already superseded this timer
		c.mu.Unlock()
		return
	}
	c.logger.Debug().Str("uniqueid", callID).Msg("incoming call popup timed out")
	c.stopLocked(callID)
	onTimeout := c.onPopupTimeout
	c.mu.Unlock()

	if onTimeout != nil {
		onTimeout(callID)
	}
}
