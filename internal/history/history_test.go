package history

import (
	"fmt"
	"testing"
	"time"
)

func TestAddAndRecent(t *testing.T) {
	l := NewLog(10)

	l.Add(Entry{Kind: EntryCallEnded, CallID: "c1"})
	l.Add(Entry{Kind: EntryAgentStatus, AgentID: "a1"})

	entries := l.Recent(10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// newest first
	if entries[0].Kind != EntryAgentStatus || entries[1].Kind != EntryCallEnded {
		t.Errorf("expected newest first, got %+v", entries)
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("expected timestamp filled in on add")
	}
}

func TestRingEvictsOldest(t *testing.T) {
	l := NewLog(3)

	for i := 0; i < 5; i++ {
		l.Add(Entry{Kind: EntryCallEnded, CallID: fmt.Sprintf("c%d", i)})
	}

	if l.Size() != 3 {
		t.Errorf("expected capacity-bounded size 3, got %d", l.Size())
	}
	entries := l.Recent(10)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].CallID != "c4" || entries[2].CallID != "c2" {
		t.Errorf("expected c4..c2 newest first, got %+v", entries)
	}
}

func TestRecentLimit(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 6; i++ {
		l.Add(Entry{Kind: EntryCallEnded, CallID: fmt.Sprintf("c%d", i)})
	}

	entries := l.Recent(2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CallID != "c5" || entries[1].CallID != "c4" {
		t.Errorf("expected the two newest, got %+v", entries)
	}

	// zero or negative means everything
	if got := len(l.Recent(0)); got != 6 {
		t.Errorf("expected all 6 entries, got %d", got)
	}
}

func TestExplicitTimestampPreserved(t *testing.T) {
	l := NewLog(10)
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l.Add(Entry{Kind: EntryAlert, Message: "trunk degraded", Timestamp: ts})

	entries := l.Recent(1)
	if !entries[0].Timestamp.Equal(ts) {
		t.Errorf("expected explicit timestamp kept, got %s", entries[0].Timestamp)
	}
}

func TestEmptyLog(t *testing.T) {
	l := NewLog(5)
	if l.Size() != 0 {
		t.Errorf("expected empty log, got size %d", l.Size())
	}
	if entries := l.Recent(10); len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}
