// Package resync re-baselines the store from REST snapshots. The
// streaming channel offers no replay, so a full snapshot on every
// (re)connect is the only way to recover events missed while offline.
package resync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/store"
	"github.com/dialdesk/console/internal/types"
)

// SnapshotAPI is the slice of the REST boundary the controller consumes
type SnapshotAPI interface {
	GetAgents(ctx context.Context) ([]types.Agent, error)
	GetActiveCalls(ctx context.Context) ([]types.Call, error)
	GetQueues(ctx context.Context) ([]types.Queue, error)
}

type kind string

const (
	kindAgents kind = "agents"
	kindCalls  kind = "calls"
	kindQueues kind = "queues"
)

// Controller fetches snapshots and swaps them into the store
type Controller struct {
	api    SnapshotAPI
	store  *store.Store
	retry  time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[kind]*time.Timer

	resyncs atomic.Int64
}

// New creates a controller; retry is the per-kind interval used when one
// snapshot endpoint fails while the others succeed
func New(api SnapshotAPI, st *store.Store, retry time.Duration, logger zerolog.Logger) *Controller {
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Controller{
		api:     api,
		store:   st,
		retry:   retry,
		logger:  logger.With().Str("component", "resync").Logger(),
		pending: make(map[kind]*time.Timer),
	}
}

// Resync fetches all three entity kinds and replaces the store's mappings.
// A failed kind does not block the others; it is retried on a short timer
// until it succeeds or a newer resync supersedes it.
func (c *Controller) Resync(ctx context.Context) {
	c.cancelPending()
	c.resyncs.Add(1)
	c.logger.Info().Msg("snapshot resync started")

	c.fetch(ctx, kindAgents)
	c.fetch(ctx, kindCalls)
	c.fetch(ctx, kindQueues)
}

// Resyncs returns how many resync rounds have been started
func (c *Controller) Resyncs() int64 {
	return c.resyncs.Load()
}

// Stop cancels any pending per-kind retries
func (c *Controller) Stop() {
	c.cancelPending()
}

func (c *Controller) fetch(ctx context.Context, k kind) {
	var err error
	switch k {
	case kindAgents:
		var agents []types.Agent
		if agents, err = c.api.GetAgents(ctx); err == nil {
			c.store.ReplaceAgents(agents)
		}
	case kindCalls:
		var calls []types.Call
		if calls, err = c.api.GetActiveCalls(ctx); err == nil {
			c.store.ReplaceCalls(calls)
		}
	case kindQueues:
		var queues []types.Queue
		if queues, err = c.api.GetQueues(ctx); err == nil {
			c.store.ReplaceQueues(queues)
		}
	}

	if err == nil {
		c.logger.Debug().Str("kind", string(k)).Msg("snapshot applied")
		return
	}
	if ctx.Err() != nil {
		return
	}

	c.logger.Warn().Err(err).
		Str("kind", string(k)).
		Dur("retry_in", c.retry).
		Msg("snapshot fetch failed, will retry")
	c.scheduleRetry(ctx, k)
}

func (c *Controller) scheduleRetry(ctx context.Context, k kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, ok := c.pending[k]; ok {
		timer.Stop()
	}
	c.pending[k] = time.AfterFunc(c.retry, func() {
		c.mu.Lock()
		delete(c.pending, k)
		c.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		c.fetch(ctx, k)
	})
}

func (c *Controller) cancelPending() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, timer := range c.pending {
		timer.Stop()
		delete(c.pending, k)
	}
}
