// Package watch observes the fleet collections for changes. The
// primary path is MongoDB change streams; deployments without a
// replica set fall back to timestamp polling.
package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"fleetwatch/internal/resources"
	"fleetwatch/internal/store"
	"fleetwatch/pkg/logging"
)

// Event is one observed change on a watched collection. DocumentID is
// the hex id of the affected document when the stream provides one.
type Event struct {
	Resource   resources.ResourceType
	Operation  string
	DocumentID string
}

// Config controls reconnect and fallback behavior
type Config struct {
	ReconnectDelay time.Duration
	PollInterval   time.Duration
}

// DefaultConfig returns the standard watch timings
func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 5 * time.Second,
		PollInterval:   2 * time.Second,
	}
}

// Watcher multiplexes change notifications from all watched
// collections onto a single event channel.
type Watcher struct {
	db     *mongo.Database
	st     *store.Store
	logger logging.Logger
	cfg    Config
	events chan Event

	eventsTotal     *prometheus.CounterVec
	reconnectsTotal *prometheus.CounterVec
}

// New creates a Watcher over the given database
func New(db *mongo.Database, st *store.Store, logger logging.Logger, cfg Config) *Watcher {
	return &Watcher{
		db:     db,
		st:     st,
		logger: logger,
		cfg:    cfg,
		events: make(chan Event, 64),
	}
}

// WithMetrics wires the optional event and reconnect counters
func (w *Watcher) WithMetrics(events, reconnects *prometheus.CounterVec) *Watcher {
	w.eventsTotal = events
	w.reconnectsTotal = reconnects
	return w
}

// Events returns the channel change notifications are delivered on.
// It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches every collection until the context is canceled. Each
// collection gets its own goroutine so a stalled stream cannot block
// the others.
func (w *Watcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, rt := range resources.Watched() {
		wg.Add(1)
		go func(rt resources.ResourceType) {
			defer wg.Done()
			w.watchResource(ctx, rt)
		}(rt)
	}
	wg.Wait()
	close(w.events)
}

func (w *Watcher) watchResource(ctx context.Context, rt resources.ResourceType) {
	// Probe once. A standalone server rejects change streams outright,
	// in which case this resource is polled instead of streamed.
	stream, err := w.openStream(ctx, rt)
	if err != nil {
		if streamsUnsupported(err) {
			w.logger.WithFields(logging.Fields{
				"resource": rt,
				"interval": w.cfg.PollInterval,
			}).Warn("Change streams unavailable, falling back to polling")
			w.pollLoop(ctx, rt)
			return
		}
	} else {
		w.consumeStream(ctx, rt, stream)
	}

	if ctx.Err() != nil {
		return
	}

	// Reconnect forever with a fixed delay between attempts.
	policy := retrypolicy.NewBuilder[any]().
		WithDelay(w.cfg.ReconnectDelay).
		WithMaxRetries(-1).
		AbortOnErrors(context.Canceled).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			if w.reconnectsTotal != nil {
				w.reconnectsTotal.WithLabelValues(string(rt)).Inc()
			}
			w.logger.WithFields(logging.Fields{
				"resource": rt,
				"attempt":  e.Attempts(),
			}).Warn("Reconnecting change stream")
		}).
		Build()

	_ = failsafe.With(policy).Run(func() error {
		if ctx.Err() != nil {
			return context.Canceled
		}
		stream, err := w.openStream(ctx, rt)
		if err != nil {
			return err
		}
		w.consumeStream(ctx, rt, stream)
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("change stream for %s ended", rt)
	})
}

func (w *Watcher) openStream(ctx context.Context, rt resources.ResourceType) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{
				{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}},
			}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	return w.db.Collection(rt.Collection()).Watch(ctx, pipeline, opts)
}

func (w *Watcher) consumeStream(ctx context.Context, rt resources.ResourceType, stream *mongo.ChangeStream) {
	defer stream.Close(context.Background())

	w.logger.WithFields(logging.Fields{"resource": rt}).Info("Change stream open")

	for stream.Next(ctx) {
		var change struct {
			OperationType string `bson:"operationType"`
			DocumentKey   struct {
				ID bson.ObjectID `bson:"_id"`
			} `bson:"documentKey"`
		}
		if err := stream.Decode(&change); err != nil {
			w.logger.WithFields(logging.Fields{
				"resource": rt,
				"error":    err,
			}).Error("Failed to decode change event")
			continue
		}
		w.emit(ctx, Event{
			Resource:   rt,
			Operation:  change.OperationType,
			DocumentID: change.DocumentKey.ID.Hex(),
		})
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		w.logger.WithFields(logging.Fields{
			"resource": rt,
			"error":    err,
		}).Error("Change stream error")
	}
}

// pollLoop compares the newest document timestamp on each tick and
// emits a synthetic event when it advances.
func (w *Watcher) pollLoop(ctx context.Context, rt resources.ResourceType) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts, err := w.st.LastModified(ctx, rt)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.WithFields(logging.Fields{
						"resource": rt,
						"error":    err,
					}).Error("Poll probe failed")
				}
				continue
			}
			if ts.After(last) {
				if !last.IsZero() {
					w.emit(ctx, Event{Resource: rt, Operation: "poll"})
				}
				last = ts
			}
		}
	}
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	if w.eventsTotal != nil {
		w.eventsTotal.WithLabelValues(string(ev.Resource), ev.Operation).Inc()
	}
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func streamsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "replica set") ||
		strings.Contains(msg, "$changeStream") ||
		strings.Contains(msg, "not supported")
}
