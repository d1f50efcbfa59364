package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Metrics holds all engine counters
type Metrics struct {
	mu sync.RWMutex

	// Streaming events
	EventsProcessedTotal    int64
	EventsDroppedTotal      int64
	InvalidTransitionsTotal int64

	// Connection lifecycle
	ConnectsTotal   int64
	ReconnectsTotal int64
	ResyncsTotal    int64

	// Outbound commands
	CommandsSentTotal     int64
	CommandsRejectedTotal int64

	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{startTime: time.Now()}
	})
	return instance
}

// RecordEventProcessed increments the processed event counter
func (m *Metrics) RecordEventProcessed() {
	m.mu.Lock()
	m.EventsProcessedTotal++
	m.mu.Unlock()
}

// RecordEventDropped increments the dropped event counter
func (m *Metrics) RecordEventDropped() {
	m.mu.Lock()
	m.EventsDroppedTotal++
	m.mu.Unlock()
}

// RecordInvalidTransition increments the absorbed invalid transition counter
func (m *Metrics) RecordInvalidTransition() {
	m.mu.Lock()
	m.InvalidTransitionsTotal++
	m.mu.Unlock()
}

// RecordConnect increments the successful connection counter
func (m *Metrics) RecordConnect() {
	m.mu.Lock()
	m.ConnectsTotal++
	m.mu.Unlock()
}

// RecordReconnect increments the reconnect counter
func (m *Metrics) RecordReconnect() {
	m.mu.Lock()
	m.ReconnectsTotal++
	m.mu.Unlock()
}

// RecordResync increments the snapshot resync counter
func (m *Metrics) RecordResync() {
	m.mu.Lock()
	m.ResyncsTotal++
	m.mu.Unlock()
}

// RecordCommandSent increments the sent command counter
func (m *Metrics) RecordCommandSent() {
	m.mu.Lock()
	m.CommandsSentTotal++
	m.mu.Unlock()
}

// RecordCommandRejected increments the rejected command counter
func (m *Metrics) RecordCommandRejected() {
	m.mu.Lock()
	m.CommandsRejectedTotal++
	m.mu.Unlock()
}

// Snapshot returns a copy of all counters plus uptime seconds
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"events_processed_total":    m.EventsProcessedTotal,
		"events_dropped_total":      m.EventsDroppedTotal,
		"invalid_transitions_total": m.InvalidTransitionsTotal,
		"connects_total":            m.ConnectsTotal,
		"reconnects_total":          m.ReconnectsTotal,
		"resyncs_total":             m.ResyncsTotal,
		"commands_sent_total":       m.CommandsSentTotal,
		"commands_rejected_total":   m.CommandsRejectedTotal,
		"uptime_seconds":            int64(time.Since(m.startTime).Seconds()),
	}
}

// Handler serves the counters as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
