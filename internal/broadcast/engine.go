// Package broadcast turns change notifications into validated dataset
// broadcasts and serves personalized report streams.
package broadcast

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fleetwatch/internal/realtime"
	"fleetwatch/internal/resources"
	"fleetwatch/internal/watch"
	"fleetwatch/pkg/logging"
)

// SnapshotProvider fetches the current dataset for a resource type.
// Satisfied by store.Store.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, rt resources.ResourceType) (interface{}, error)
}

// Metrics are the engine's instrumentation hooks. Any of them may be
// nil when metrics are not wired.
type Metrics struct {
	BroadcastsTotal *prometheus.CounterVec // labels: resource, outcome
	TriggersSkipped *prometheus.CounterVec // labels: resource
	CycleDuration   *prometheus.HistogramVec
}

// Engine runs broadcast cycles. Each resource has an in-flight guard:
// a trigger arriving while a cycle for that resource is running is
// skipped, not queued, because the running cycle will already fetch
// state newer than the trigger.
type Engine struct {
	st      SnapshotProvider
	hub     *realtime.Hub
	cache   *Cache
	logger  logging.Logger
	metrics Metrics

	refreshInterval time.Duration
	inflight        map[resources.ResourceType]*atomic.Bool
}

// NewEngine creates a broadcast engine
func NewEngine(st SnapshotProvider, hub *realtime.Hub, cache *Cache, logger logging.Logger, metrics Metrics, refreshInterval time.Duration) *Engine {
	inflight := make(map[resources.ResourceType]*atomic.Bool, len(resources.All()))
	for _, rt := range resources.All() {
		inflight[rt] = &atomic.Bool{}
	}
	return &Engine{
		st:              st,
		hub:             hub,
		cache:           cache,
		logger:          logger,
		metrics:         metrics,
		refreshInterval: refreshInterval,
		inflight:        inflight,
	}
}

// Seeder returns the registration hook that replays every cached
// payload to a newly connected dashboard client.
func (e *Engine) Seeder() realtime.Seeder {
	return func(c *realtime.Client) {
		c.SendEvent("connection-established", map[string]string{"clientId": c.ID})
		if c.Kind != realtime.KindDashboard {
			return
		}
		c.JoinRoom("dashboard")
		e.cache.Each(func(rt resources.ResourceType, p CachedPayload) {
			c.Send(p.Message)
		})
	}
}

// Run consumes change events until the context is canceled, and, while
// dashboard clients are connected, refreshes all resources on a fixed
// interval as a safety net for changes the watcher missed.
func (e *Engine) Run(ctx context.Context, events <-chan watch.Event) {
	ticker := time.NewTicker(e.refreshInterval)
	defer ticker.Stop()

	// Prime the cache so the first client join has data to seed.
	for _, rt := range resources.All() {
		e.Trigger(ctx, rt)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			e.advise(ev)
			e.Trigger(ctx, ev.Resource)
			// Dashboard stats are derived from the other collections,
			// so any change invalidates them too.
			e.Trigger(ctx, resources.Dashboard)

		case <-ticker.C:
			// Nobody is listening: let the cache go stale and skip
			// the fetch fan-out until a dashboard reconnects.
			if e.hub.ClientCount(realtime.KindDashboard) == 0 {
				continue
			}
			for _, rt := range resources.All() {
				e.Trigger(ctx, rt)
			}
		}
	}
}

// advise sends the lightweight change notification before the full
// dataset broadcast lands.
func (e *Engine) advise(ev watch.Event) {
	msg, err := json.Marshal(map[string]interface{}{
		"event":     ev.Resource.ChangeEvent(ev.Operation),
		"data":      map[string]string{"id": ev.DocumentID},
		"timestamp": resources.Timestamp(),
	})
	if err != nil {
		return
	}
	e.hub.Broadcast(msg)
}

// Trigger starts a broadcast cycle for a resource unless one is
// already in flight.
func (e *Engine) Trigger(ctx context.Context, rt resources.ResourceType) {
	guard := e.inflight[rt]
	if guard == nil || !guard.CompareAndSwap(false, true) {
		if e.metrics.TriggersSkipped != nil {
			e.metrics.TriggersSkipped.WithLabelValues(string(rt)).Inc()
		}
		return
	}

	go func() {
		defer guard.Store(false)
		e.cycle(ctx, rt)
	}()
}

func (e *Engine) cycle(ctx context.Context, rt resources.ResourceType) {
	start := time.Now()

	data, err := e.st.Snapshot(ctx, rt)
	if err != nil || !Validate(rt, data) {
		if err != nil {
			e.logger.WithFields(logging.Fields{
				"resource": rt,
				"error":    err,
			}).Error("Snapshot fetch failed")
		} else {
			e.logger.WithFields(logging.Fields{
				"resource": rt,
			}).Warn("Snapshot failed validation")
		}
		e.fallback(rt)
		return
	}

	env := resources.NewEnvelope(rt, Normalize(rt, data))
	msg, err := json.Marshal(env)
	if err != nil {
		e.logger.WithFields(logging.Fields{
			"resource": rt,
			"error":    err,
		}).Error("Failed to marshal broadcast")
		e.fallback(rt)
		return
	}

	e.cache.Set(rt, msg)
	e.hub.Broadcast(msg)
	e.observe(rt, "fresh", start)
}

// fallback broadcasts the cached last-good payload, or a zeroed
// placeholder when nothing has ever been cached.
func (e *Engine) fallback(rt resources.ResourceType) {
	start := time.Now()

	if p, ok := e.cache.Get(rt); ok {
		e.hub.Broadcast(p.Message)
		e.observe(rt, "cached", start)
		return
	}

	env := resources.NewEmptyEnvelope(rt, "no data available")
	msg, err := json.Marshal(env)
	if err != nil {
		return
	}
	e.hub.Broadcast(msg)
	e.observe(rt, "placeholder", start)
}

func (e *Engine) observe(rt resources.ResourceType, outcome string, start time.Time) {
	if e.metrics.BroadcastsTotal != nil {
		e.metrics.BroadcastsTotal.WithLabelValues(string(rt), outcome).Inc()
	}
	if e.metrics.CycleDuration != nil {
		e.metrics.CycleDuration.WithLabelValues(string(rt)).Observe(time.Since(start).Seconds())
	}
}
