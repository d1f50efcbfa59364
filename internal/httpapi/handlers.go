// Package httpapi is the local HTTP facade the UI layer talks to: read
// access to the store projections, the command surface, and the
// connection status that gates UI affordances.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/command"
	"github.com/dialdesk/console/internal/engine"
	"github.com/dialdesk/console/internal/metrics"
	"github.com/dialdesk/console/internal/types"
)

// Handler serves the console facade
type Handler struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewHandler creates a facade handler over the engine
func NewHandler(eng *engine.Engine, logger zerolog.Logger) *Handler {
	return &Handler{
		engine: eng,
		logger: logger.With().Str("component", "httpapi").Logger(),
	}
}

// Routes mounts all facade endpoints on r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Get("/calls/active", h.handleActiveCalls)
	r.Get("/calls/current", h.handleCurrentCall)
	r.Get("/calls/incoming", h.handleIncomingCall)
	r.Get("/agents", h.handleAgents)
	r.Get("/queues", h.handleQueues)
	r.Get("/activity", h.handleActivity)
	r.Get("/stats", h.handleStats)
	r.Get("/metrics", metrics.Get().Handler)

	r.Post("/calls/answer", h.callCommand(h.engine.Gateway().Answer))
	r.Post("/calls/reject", h.callCommand(h.engine.Gateway().Reject))
	r.Post("/calls/hangup", h.callCommand(h.engine.Gateway().Hangup))
	r.Post("/calls/hold", h.callCommand(h.engine.Gateway().Hold))
	r.Post("/calls/unhold", h.callCommand(h.engine.Gateway().Unhold))
	r.Post("/calls/recording/start", h.callCommand(h.engine.Gateway().StartRecording))
	r.Post("/calls/recording/stop", h.callCommand(h.engine.Gateway().StopRecording))
	r.Post("/calls/transfer", h.handleTransfer(false))
	r.Post("/calls/blind-transfer", h.handleTransfer(true))
	r.Post("/calls/dtmf", h.handleDTMF)
	r.Put("/agent/status", h.handleAgentStatus)
}

// statusResponse reports the connection and operator identity
type statusResponse struct {
	Connection types.ConnectionStatus `json:"connection"`
	AgentID    string                 `json:"agentId,omitempty"`
	Extension  string                 `json:"extension,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	op := h.engine.Operator()
	writeJSON(w, http.StatusOK, statusResponse{
		Connection: h.engine.Status(),
		AgentID:    op.AgentID,
		Extension:  op.Extension,
	})
}

func (h *Handler) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Store().Calls())
}

func (h *Handler) handleCurrentCall(w http.ResponseWriter, r *http.Request) {
	call, ok := h.engine.Store().CurrentCall()
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	call, ok := h.engine.Store().IncomingCall()
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Store().Agents())
}

func (h *Handler) handleQueues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Store().Queues())
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, h.engine.History().Recent(limit))
}

// statsResponse is the dashboard summary computed from the store
type statsResponse struct {
	ActiveCalls     int                       `json:"activeCalls"`
	WaitingCalls    int                       `json:"waitingCalls"`
	AvailableAgents int                       `json:"availableAgents"`
	AgentsByStatus  map[types.AgentStatus]int `json:"agentsByStatus"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Store()

	stats := statsResponse{
		ActiveCalls:    len(st.Calls()),
		AgentsByStatus: make(map[types.AgentStatus]int),
	}
	for _, agent := range st.Agents() {
		stats.AgentsByStatus[agent.Status]++
	}
	for _, queue := range st.Queues() {
		stats.WaitingCalls += queue.WaitingCalls
		stats.AvailableAgents += queue.AvailableAgents
	}
	writeJSON(w, http.StatusOK, stats)
}

// callRequest addresses a call by uniqueid or channel alias
type callRequest struct {
	Call    string `json:"call,omitempty"`
	Channel string `json:"channel,omitempty"`
}

func (r callRequest) ref() string {
	if r.Call != "" {
		return r.Call
	}
	return r.Channel
}

// callCommand adapts a single-argument gateway call into a handler
func (h *Handler) callCommand(fn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req callRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		h.finish(w, fn(req.ref()))
	}
}

type transferRequest struct {
	callRequest
	Extension string `json:"extension"`
}

func (h *Handler) handleTransfer(blind bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if blind {
			h.finish(w, h.engine.Gateway().BlindTransfer(req.ref(), req.Extension))
			return
		}
		h.finish(w, h.engine.Gateway().Transfer(req.ref(), req.Extension))
	}
}

type dtmfRequest struct {
	callRequest
	Digits string `json:"digits"`
}

func (h *Handler) handleDTMF(w http.ResponseWriter, r *http.Request) {
	var req dtmfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	h.finish(w, h.engine.Gateway().SendDTMF(req.ref(), req.Digits))
}

type agentStatusRequest struct {
	Status types.AgentStatus `json:"status"`
}

func (h *Handler) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req agentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	h.finish(w, h.engine.Gateway().UpdateStatus(req.Status))
}

// finish maps gateway errors onto HTTP statuses the UI can act on
func (h *Handler) finish(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
	case errors.Is(err, command.ErrNotConnected):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "not connected to call server"})
	case errors.Is(err, command.ErrUnknownCall):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown call"})
	default:
		h.logger.Warn().Err(err).Msg("command failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
