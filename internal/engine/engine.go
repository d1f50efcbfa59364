// Package engine composes the sync machinery: streaming client, router,
// entity store, reconciliation, side effects and the command gateway. It
// is the single surface the UI layer talks to.
package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/auth"
	"github.com/dialdesk/console/internal/command"
	"github.com/dialdesk/console/internal/config"
	"github.com/dialdesk/console/internal/effects"
	"github.com/dialdesk/console/internal/history"
	"github.com/dialdesk/console/internal/metrics"
	"github.com/dialdesk/console/internal/restapi"
	"github.com/dialdesk/console/internal/resync"
	"github.com/dialdesk/console/internal/socket"
	"github.com/dialdesk/console/internal/store"
	"github.com/dialdesk/console/internal/types"
)

// Engine owns the real-time state synchronization for one operator session
type Engine struct {
	logger     zerolog.Logger
	credential *auth.Credential
	store      *store.Store
	history    *history.Log
	effects    *effects.Coordinator
	socket     *socket.Client
	router     *socket.Router
	resync     *resync.Controller
	gateway    *command.Gateway

	trSub <-chan store.Transition

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

// New wires up an engine from configuration. sink receives the
// user-visible effects; pass effects.NewLogSink for a headless console.
func New(cfg *config.Config, sink effects.Sink, logger zerolog.Logger) *Engine {
	credential := auth.NewCredential()
	st := store.New(logger)
	fx := effects.New(sink, cfg.PopupTimeout, logger)
	rest := restapi.NewClient(cfg.APIBaseURL, credential, cfg.HTTPTimeout)
	rc := resync.New(rest, st, cfg.SnapshotRetry, logger)
	sc := socket.NewClient(socket.Options{
		URL:               cfg.SocketURL,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		WriteTimeout:      cfg.WriteTimeout,
	}, credential, logger)

	e := &Engine{
		logger:     logger.With().Str("component", "engine").Logger(),
		credential: credential,
		store:      st,
		history:    history.NewLog(200),
		effects:    fx,
		socket:     sc,
		resync:     rc,
	}
	e.router = socket.NewRouter(e, logger)
	e.gateway = command.NewGateway(sc, st, credential, fx, logger)

	sc.OnEnvelope(e.handleEnvelope)
	sc.OnConnect(e.handleConnect)
	sc.OnStatus(e.handleStatus)
	fx.OnPopupTimeout(func(callID string) {
		st.ClearIncomingCall(callID)
	})

	// snapshot reconciliation can remove calls without a call:end event;
	// their UI surfaces still have to go away
	e.trSub = st.Subscribe()
	go e.watchStore(e.trSub)

	return e
}

// watchStore dismisses effects for calls the store dropped outside the
// event path. Effect teardown is idempotent, so overlap with the direct
// handler calls is harmless.
func (e *Engine) watchStore(sub <-chan store.Transition) {
	for tr := range sub {
		switch tr.Kind {
		case store.TransitionCallRemoved:
			e.effects.CallEnded(tr.CallID)
		case store.TransitionIncomingClear:
			e.effects.CallLeftRinging(tr.CallID)
		}
	}
}

// Subscribe exposes store transitions to the UI layer
func (e *Engine) Subscribe() <-chan store.Transition {
	return e.store.Subscribe()
}

// Unsubscribe releases a transition subscription
func (e *Engine) Unsubscribe(sub <-chan store.Transition) {
	e.store.Unsubscribe(sub)
}

// Connect stores the operator credential and starts the connection loop.
// The credential travels in the handshake, never in a URL or a log line.
func (e *Engine) Connect(ctx context.Context, token string) error {
	if err := e.credential.Set(token); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	e.runCtx, e.cancel = context.WithCancel(ctx)
	e.started = true

	go e.socket.Run(e.runCtx)
	return nil
}

// Disconnect tears everything down and clears the in-memory credential
func (e *Engine) Disconnect() {
	e.mu.Lock()
	cancel := e.cancel
	e.started = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.socket.Disconnect()
	e.resync.Stop()
	e.effects.Stop()
	e.store.Unsubscribe(e.trSub)
	e.credential.Clear()
}

// Store exposes the entity store projections to the UI layer
func (e *Engine) Store() *store.Store {
	return e.store
}

// Gateway exposes the operator command surface
func (e *Engine) Gateway() *command.Gateway {
	return e.gateway
}

// History exposes the recent activity feed
func (e *Engine) History() *history.Log {
	return e.history
}

// Status returns the streaming connection status for gating UI affordances
func (e *Engine) Status() types.ConnectionStatus {
	return e.socket.Status()
}

// Operator returns the identity parsed from the credential
func (e *Engine) Operator() types.Operator {
	return types.Operator{
		AgentID:   e.credential.AgentID(),
		Extension: e.credential.Extension(),
	}
}

// handleEnvelope is the single entry point for inbound frames; the socket
// client calls it from one goroutine, so handlers run strictly in arrival
// order and to completion.
func (e *Engine) handleEnvelope(env types.Envelope) {
	e.router.Dispatch(env)
}

// handleConnect runs after every successful (re)connect: a full snapshot
// resync is the only recovery for events missed while disconnected.
func (e *Engine) handleConnect() {
	m := metrics.Get()
	m.RecordConnect()
	if e.socket.Reconnects() > 0 {
		m.RecordReconnect()
	}
	m.RecordResync()
	e.resync.Resync(e.runContext())
}

func (e *Engine) handleStatus(status types.ConnectionStatus) {
	e.logger.Info().Str("status", string(status)).Msg("connection status changed")
	e.effects.ConnectionChanged(status)
}

func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}
