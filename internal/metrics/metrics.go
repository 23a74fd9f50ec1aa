// Package metrics bundles the dispatcher's custom Prometheus metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"fleetwatch/pkg/monitoring"
)

// Service holds every custom metric the dispatcher exposes beyond the
// standard HTTP instrumentation.
type Service struct {
	ConnectedClients *prometheus.GaugeVec
	EvictionsTotal   *prometheus.CounterVec

	BroadcastsTotal *prometheus.CounterVec
	TriggersSkipped *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec

	SnapshotQueries  *prometheus.CounterVec
	SnapshotDuration *prometheus.HistogramVec

	WatchEvents     *prometheus.CounterVec
	WatchReconnects *prometheus.CounterVec
}

// NewService registers the dispatcher metrics on the collector
func NewService(mc *monitoring.MetricsCollector) *Service {
	snapshotQueries, snapshotDuration := mc.CreateSnapshotMetrics()
	watchEvents, watchReconnects := mc.CreateWatchMetrics()

	return &Service{
		ConnectedClients: mc.NewGauge("connected_clients", "Connected websocket clients", []string{"kind"}),
		EvictionsTotal:   mc.NewCounter("evictions_total", "Idle clients evicted", []string{"kind"}),

		BroadcastsTotal: mc.NewCounter("broadcasts_total", "Broadcast cycles by outcome", []string{"resource", "outcome"}),
		TriggersSkipped: mc.NewCounter("triggers_skipped_total", "Triggers skipped while a cycle was in flight", []string{"resource"}),
		CycleDuration:   mc.NewHistogram("broadcast_cycle_seconds", "Broadcast cycle duration", []string{"resource"}, nil),

		SnapshotQueries:  snapshotQueries,
		SnapshotDuration: snapshotDuration,

		WatchEvents:     watchEvents,
		WatchReconnects: watchReconnects,
	}
}
