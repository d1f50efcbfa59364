package resync

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/store"
	"github.com/dialdesk/console/internal/types"
)

// fakeAPI serves canned snapshots and can be told to fail per kind
type fakeAPI struct {
	mu         sync.Mutex
	agents     []types.Agent
	calls      []types.Call
	queues     []types.Queue
	failAgents bool
	callCounts map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{callCounts: make(map[string]int)}
}

func (f *fakeAPI) GetAgents(ctx context.Context) ([]types.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCounts["agents"]++
	if f.failAgents {
		return nil, errors.New("agents endpoint down")
	}
	return f.agents, nil
}

func (f *fakeAPI) GetActiveCalls(ctx context.Context) ([]types.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCounts["calls"]++
	return f.calls, nil
}

func (f *fakeAPI) GetQueues(ctx context.Context) ([]types.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCounts["queues"]++
	return f.queues, nil
}

func (f *fakeAPI) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCounts[kind]
}

func (f *fakeAPI) setFailAgents(fail bool) {
	f.mu.Lock()
	f.failAgents = fail
	f.mu.Unlock()
}

func TestResyncReplacesStore(t *testing.T) {
	st := store.New(zerolog.New(&bytes.Buffer{}))
	api := newFakeAPI()
	api.agents = []types.Agent{{ID: "a1", Status: types.AgentAvailable}}
	api.calls = []types.Call{{UniqueID: "c1", State: types.CallAnswered}}
	api.queues = []types.Queue{{ID: "q1", WaitingCalls: 2}}

	// stale local state that the snapshot should overwrite
	st.UpsertCall("stale", types.CallPatch{})

	c := New(api, st, time.Second, zerolog.New(&bytes.Buffer{}))
	c.Resync(context.Background())
	defer c.Stop()

	if _, ok := st.Call("stale"); ok {
		t.Error("expected stale call to be dropped by the snapshot")
	}
	if _, ok := st.Call("c1"); !ok {
		t.Error("expected snapshot call to be present")
	}
	if _, ok := st.Agent("a1"); !ok {
		t.Error("expected snapshot agent to be present")
	}
	if q, ok := st.Queue("q1"); !ok || q.WaitingCalls != 2 {
		t.Errorf("expected snapshot queue with counters, got %+v ok=%v", q, ok)
	}
	if c.Resyncs() != 1 {
		t.Errorf("expected 1 resync round, got %d", c.Resyncs())
	}
}

func TestFailedKindIsRetriedAlone(t *testing.T) {
	st := store.New(zerolog.New(&bytes.Buffer{}))
	api := newFakeAPI()
	api.setFailAgents(true)
	api.calls = []types.Call{{UniqueID: "c1", State: types.CallRinging}}

	c := New(api, st, 50*time.Millisecond, zerolog.New(&bytes.Buffer{}))
	c.Resync(context.Background())
	defer c.Stop()

	// the healthy kinds must land despite the agents failure
	if _, ok := st.Call("c1"); !ok {
		t.Error("expected calls snapshot to land despite agents failure")
	}

	api.setFailAgents(false)
	api.mu.Lock()
	api.agents = []types.Agent{{ID: "a1", Status: types.AgentAvailable}}
	api.mu.Unlock()

	time.Sleep(150 * time.Millisecond)

	if _, ok := st.Agent("a1"); !ok {
		t.Error("expected agents snapshot to land after retry")
	}
	if api.count("calls") != 1 {
		t.Errorf("expected calls endpoint hit once, got %d", api.count("calls"))
	}
	if api.count("agents") < 2 {
		t.Errorf("expected agents endpoint retried, got %d", api.count("agents"))
	}
}

func TestNewResyncSupersedesPendingRetry(t *testing.T) {
	st := store.New(zerolog.New(&bytes.Buffer{}))
	api := newFakeAPI()
	api.setFailAgents(true)

	c := New(api, st, 50*time.Millisecond, zerolog.New(&bytes.Buffer{}))
	c.Resync(context.Background())

	// a fresh resync cancels the scheduled retry before it fires
	api.setFailAgents(false)
	c.Resync(context.Background())
	c.Stop()

	before := api.count("agents")
	time.Sleep(120 * time.Millisecond)
	if got := api.count("agents"); got != before {
		t.Errorf("expected no further fetches after Stop, got %d -> %d", before, got)
	}
	if c.Resyncs() != 2 {
		t.Errorf("expected 2 resync rounds, got %d", c.Resyncs())
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	st := store.New(zerolog.New(&bytes.Buffer{}))
	api := newFakeAPI()
	api.setFailAgents(true)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(api, st, 30*time.Millisecond, zerolog.New(&bytes.Buffer{}))
	c.Resync(ctx)
	cancel()

	before := api.count("agents")
	time.Sleep(100 * time.Millisecond)
	if got := api.count("agents"); got != before {
		t.Errorf("expected retries to stop on cancel, got %d -> %d", before, got)
	}
}
