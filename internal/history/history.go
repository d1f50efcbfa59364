// Package history keeps a bounded in-memory record of recent activity:
// ended calls and agent status changes. It backs the console's recent
// activity feed; nothing here is persisted.
package history

import (
	"sync"
	"time"

	"github.com/dialdesk/console/internal/types"
)

// EntryKind classifies an activity entry
type EntryKind string

const (
	EntryCallEnded   EntryKind = "call_ended"
	EntryAgentStatus EntryKind = "agent_status"
	EntryAlert       EntryKind = "alert"
)

// Entry is one item in the activity feed
type Entry struct {
	Kind      EntryKind         `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	CallID    string            `json:"callId,omitempty"`
	CallerID  string            `json:"callerId,omitempty"`
	Cause     string            `json:"cause,omitempty"`
	Duration  int64             `json:"durationSeconds,omitempty"`
	AgentID   string            `json:"agentId,omitempty"`
	Status    types.AgentStatus `json:"status,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// Log is a fixed-capacity ring of entries, newest first on read
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewLog creates a log holding up to capacity entries
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 200
	}
	return &Log{entries: make([]Entry, capacity)}
}

// Add appends an entry, evicting the oldest when full
func (l *Log) Add(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = entry
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.full = true
	}
}

// Recent returns up to n entries, newest first
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.next
	if l.full {
		size = len(l.entries)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := l.next - 1 - i
		if idx < 0 {
			idx += len(l.entries)
		}
		out = append(out, l.entries[idx])
	}
	return out
}

// Size returns the number of stored entries
func (l *Log) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.full {
		return len(l.entries)
	}
	return l.next
}
