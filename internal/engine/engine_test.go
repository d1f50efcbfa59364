package engine

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/config"
	"github.com/dialdesk/console/internal/history"
	"github.com/dialdesk/console/internal/socket"
	"github.com/dialdesk/console/internal/types"
)

// countingSink records every user-visible effect
type countingSink struct {
	mu          sync.Mutex
	ringStarts  []string
	ringStops   []string
	popupsShown []string
	popupsGone  []string
	notices     []string
}

func (s *countingSink) StartRingtone(callID string) {
	s.mu.Lock()
	s.ringStarts = append(s.ringStarts, callID)
	s.mu.Unlock()
}

func (s *countingSink) StopRingtone(callID string) {
	s.mu.Lock()
	s.ringStops = append(s.ringStops, callID)
	s.mu.Unlock()
}

func (s *countingSink) ShowIncomingPopup(call types.Call) {
	s.mu.Lock()
	s.popupsShown = append(s.popupsShown, call.UniqueID)
	s.mu.Unlock()
}

func (s *countingSink) DismissIncomingPopup(callID string) {
	s.mu.Lock()
	s.popupsGone = append(s.popupsGone, callID)
	s.mu.Unlock()
}

func (s *countingSink) Notify(severity, message string) {
	s.mu.Lock()
	s.notices = append(s.notices, severity+": "+message)
	s.mu.Unlock()
}

func (s *countingSink) counts() (starts, stops, shown, gone int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ringStarts), len(s.ringStops), len(s.popupsShown), len(s.popupsGone)
}

func testConfig() *config.Config {
	return &config.Config{
		APIBaseURL:        "http://127.0.0.1:1/api",
		SocketURL:         "ws://127.0.0.1:1/ws",
		HTTPTimeout:       time.Second,
		WriteTimeout:      time.Second,
		ReconnectAttempts: 1,
		ReconnectDelay:    10 * time.Millisecond,
		PopupTimeout:      time.Minute,
		SnapshotRetry:     time.Minute,
	}
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"agentId":   "agent-1",
		"extension": "1001",
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// newTestEngine builds an engine with the connection loop parked: the
// context is already cancelled, so events are driven directly through the
// handler surface.
func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *countingSink) {
	t.Helper()
	sink := &countingSink{}
	e := New(cfg, sink, zerolog.New(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Connect(ctx, operatorToken(t)); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	t.Cleanup(e.Disconnect)
	return e, sink
}

func ringingFor(extension, callID string) types.CallEvent {
	return types.CallEvent{
		UniqueID:    callID,
		CallerID:    "0800123",
		Destination: extension,
	}
}

func TestIncomingRingingRaisesPopup(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	e.HandleCallEvent(socket.KindCallRinging, ringingFor("1001", "c1"))

	starts, _, shown, _ := sink.counts()
	if starts != 1 || shown != 1 {
		t.Errorf("expected ringtone and popup, got starts=%d shown=%d", starts, shown)
	}
	call, ok := e.Store().IncomingCall()
	if !ok || call.UniqueID != "c1" {
		t.Errorf("expected incoming overlay for c1, got %+v ok=%v", call, ok)
	}
}

func TestRingingForAnotherExtensionStaysSilent(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	e.HandleCallEvent(socket.KindCallRinging, ringingFor("1002", "c1"))

	starts, _, shown, _ := sink.counts()
	if starts != 0 || shown != 0 {
		t.Errorf("expected no effects for another extension, got starts=%d shown=%d", starts, shown)
	}
	if _, ok := e.Store().IncomingCall(); ok {
		t.Error("expected no incoming overlay")
	}
	if _, ok := e.Store().Call("c1"); !ok {
		t.Error("expected the call tracked regardless")
	}
}

func TestDuplicateRingingIsIdempotent(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	ev := ringingFor("1001", "c1")
	e.HandleCallEvent(socket.KindCallRinging, ev)
	e.HandleCallEvent(socket.KindCallRinging, ev)
	e.HandleCallEvent(socket.KindCallRinging, ev)

	starts, _, shown, _ := sink.counts()
	if starts != 1 || shown != 1 {
		t.Errorf("expected single delivery across duplicates, got starts=%d shown=%d", starts, shown)
	}
}

func TestAnsweredDismissesPopupAndSetsCurrent(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	e.HandleCallEvent(socket.KindCallRinging, ringingFor("1001", "c1"))
	e.HandleCallEvent(socket.KindCallAnswered, ringingFor("1001", "c1"))

	_, stops, _, gone := sink.counts()
	if stops != 1 || gone != 1 {
		t.Errorf("expected effects retired on answer, got stops=%d gone=%d", stops, gone)
	}
	if _, ok := e.Store().IncomingCall(); ok {
		t.Error("expected incoming overlay cleared")
	}
	current, ok := e.Store().CurrentCall()
	if !ok || current.UniqueID != "c1" {
		t.Errorf("expected c1 as current call, got %+v ok=%v", current, ok)
	}
}

func TestAuthoritativeAnswerAfterOptimisticAnswer(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	// incoming ring, then the operator answers locally (what the command
	// gateway does before the server confirms)
	e.HandleCallEvent(socket.KindCallRinging, ringingFor("1001", "c1"))
	e.Store().ClearIncomingCall("c1")
	e.effects.CallLeftRinging("c1")

	// the authoritative answered event lands later; nothing may re-fire
	e.HandleCallEvent(socket.KindCallAnswered, ringingFor("1001", "c1"))

	starts, stops, shown, gone := sink.counts()
	if starts != 1 || shown != 1 {
		t.Errorf("expected no re-shown surfaces, got starts=%d shown=%d", starts, shown)
	}
	if stops != 1 || gone != 1 {
		t.Errorf("expected single teardown, got stops=%d gone=%d", stops, gone)
	}
}

func TestAnsweredSetsAgentBackReference(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	ev := ringingFor("1001", "c1")
	ev.AgentID = "agent-1"
	e.HandleCallEvent(socket.KindCallRinging, ev)
	e.HandleCallEvent(socket.KindCallAnswered, ev)

	agent, ok := e.Store().Agent("agent-1")
	if !ok || agent.CurrentCallID != "c1" || agent.Status != types.AgentBusy {
		t.Errorf("expected busy agent holding c1, got %+v ok=%v", agent, ok)
	}
}

func TestCallEventByChannelAlias(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	ev := ringingFor("1001", "c1")
	ev.Channel = "SIP/1001-0001"
	e.HandleCallEvent(socket.KindCallRinging, ev)

	// later events may carry only the channel
	e.HandleCallEvent(socket.KindCallAnswered, types.CallEvent{Channel: "SIP/1001-0001"})

	call, _ := e.Store().Call("c1")
	if call.State != types.CallAnswered {
		t.Errorf("expected answered via channel alias, got %s", call.State)
	}
}

func TestUnresolvableCallEventIsDropped(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	e.HandleCallEvent(socket.KindCallAnswered, types.CallEvent{Channel: "SIP/ghost"})

	if calls := e.Store().Calls(); len(calls) != 0 {
		t.Errorf("expected no call created from unresolvable alias, got %d", len(calls))
	}
}

func TestInvalidTransitionIsAbsorbed(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	e.HandleCallEvent(socket.KindCallRinging, ringingFor("1001", "c1"))
	// held straight from ringing is not a legal edge
	e.HandleCallEvent(socket.KindCallHeld, ringingFor("1001", "c1"))

	call, _ := e.Store().Call("c1")
	if call.State != types.CallRinging {
		t.Errorf("expected state preserved, got %s", call.State)
	}
	// the popup stays up, the call never left ringing
	_, _, _, gone := sink.counts()
	if gone != 0 {
		t.Errorf("expected popup untouched, got %d dismissals", gone)
	}
}

func TestCallEndRecordsHistoryAndClearsAgent(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	ev := ringingFor("1001", "c1")
	ev.AgentID = "agent-1"
	e.HandleCallEvent(socket.KindCallRinging, ev)
	e.HandleCallEvent(socket.KindCallAnswered, ev)
	e.HandleCallEnd(types.CallEndEvent{UniqueID: "c1", Cause: "busy"})

	if _, ok := e.Store().Call("c1"); ok {
		t.Error("expected call removed")
	}
	agent, _ := e.Store().Agent("agent-1")
	if agent.CurrentCallID != "" {
		t.Errorf("expected agent back-reference cleared, got %q", agent.CurrentCallID)
	}

	entries := e.History().Recent(10)
	found := false
	for _, entry := range entries {
		if entry.Kind == history.EntryCallEnded && entry.CallID == "c1" && entry.Cause == "busy" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected call-ended history entry, got %+v", entries)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	noticed := false
	for _, n := range sink.notices {
		if n == "info: call ended: busy" {
			noticed = true
		}
	}
	if !noticed {
		t.Errorf("expected call-ended toast, got %v", sink.notices)
	}
}

func TestDuplicateCallEndIsNoOp(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	e.HandleCallEvent(socket.KindCallRinging, ringingFor("1001", "c1"))
	e.HandleCallEnd(types.CallEndEvent{UniqueID: "c1"})

	before := len(e.History().Recent(10))
	e.HandleCallEnd(types.CallEndEvent{UniqueID: "c1"})
	if got := len(e.History().Recent(10)); got != before {
		t.Errorf("expected no extra history entry, got %d -> %d", before, got)
	}
}

func TestAgentLifecycleEvents(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	e.HandleAgentEvent(socket.KindAgentLogin, types.AgentEvent{AgentID: "a1", Name: "Dana"})
	agent, _ := e.Store().Agent("a1")
	if agent.Status != types.AgentAvailable {
		t.Errorf("expected available after login, got %s", agent.Status)
	}

	e.HandleAgentEvent(socket.KindAgentPause, types.AgentEvent{AgentID: "a1"})
	agent, _ = e.Store().Agent("a1")
	if agent.Status != types.AgentAway {
		t.Errorf("expected away after pause, got %s", agent.Status)
	}

	e.HandleAgentEvent(socket.KindAgentUnpause, types.AgentEvent{AgentID: "a1"})
	agent, _ = e.Store().Agent("a1")
	if agent.Status != types.AgentAvailable {
		t.Errorf("expected available after unpause, got %s", agent.Status)
	}

	e.HandleAgentEvent(socket.KindAgentLogout, types.AgentEvent{AgentID: "a1"})
	agent, _ = e.Store().Agent("a1")
	if agent.Status != types.AgentOffline || agent.CurrentCallID != "" {
		t.Errorf("expected offline with no call after logout, got %+v", agent)
	}
}

func TestQueueEvents(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	e.HandleQueueUpdate(types.QueueEvent{ID: "q1", Name: "support", WaitingCalls: 4, AvailableAgents: 2})
	queue, ok := e.Store().Queue("q1")
	if !ok || queue.WaitingCalls != 4 || queue.AvailableAgents != 2 {
		t.Errorf("expected queue counters applied, got %+v ok=%v", queue, ok)
	}

	e.HandleQueueMember(socket.KindQueueMemberAdded, types.QueueMemberEvent{QueueID: "q1", AgentID: "a1"})
	queue, _ = e.Store().Queue("q1")
	if len(queue.Members) != 1 {
		t.Errorf("expected one member, got %v", queue.Members)
	}

	e.HandleQueueMember(socket.KindQueueMemberRemoved, types.QueueMemberEvent{QueueID: "q1", AgentID: "a1"})
	queue, _ = e.Store().Queue("q1")
	if len(queue.Members) != 0 {
		t.Errorf("expected no members, got %v", queue.Members)
	}
}

func TestSystemAlertIsSurfaced(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	e.HandleSystemEvent(socket.KindSystemAlert, types.SystemAlert{Severity: "warning", Message: "trunk degraded"})

	sink.mu.Lock()
	notices := len(sink.notices)
	sink.mu.Unlock()
	if notices != 1 {
		t.Errorf("expected one notification, got %d", notices)
	}

	entries := e.History().Recent(10)
	if len(entries) != 1 || entries[0].Kind != history.EntryAlert {
		t.Errorf("expected alert history entry, got %+v", entries)
	}
}

func TestPopupTimeoutClearsOverlay(t *testing.T) {
	cfg := testConfig()
	cfg.PopupTimeout = 30 * time.Millisecond
	e, sink := newTestEngine(t, cfg)

	e.HandleCallEvent(socket.KindCallRinging, ringingFor("1001", "c1"))
	time.Sleep(100 * time.Millisecond)

	if _, ok := e.Store().IncomingCall(); ok {
		t.Error("expected overlay cleared after popup timeout")
	}
	_, stops, _, gone := sink.counts()
	if stops != 1 || gone != 1 {
		t.Errorf("expected effects retired on timeout, got stops=%d gone=%d", stops, gone)
	}
	// the call itself stays until the server says otherwise
	if _, ok := e.Store().Call("c1"); !ok {
		t.Error("expected call still tracked after popup timeout")
	}
}

func TestSnapshotRemovalDismissesEffects(t *testing.T) {
	e, sink := newTestEngine(t, testConfig())

	e.HandleCallEvent(socket.KindCallRinging, ringingFor("1001", "c1"))

	// a resync snapshot that no longer contains the ringing call
	e.Store().ReplaceCalls(nil)
	time.Sleep(50 * time.Millisecond)

	_, stops, _, gone := sink.counts()
	if stops != 1 || gone != 1 {
		t.Errorf("expected effects dismissed by snapshot removal, got stops=%d gone=%d", stops, gone)
	}
}

func TestOperatorIdentityFromToken(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	op := e.Operator()
	if op.AgentID != "agent-1" || op.Extension != "1001" {
		t.Errorf("unexpected operator identity %+v", op)
	}
}
