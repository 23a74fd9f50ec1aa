// Package realtime maintains the set of connected websocket clients
// and fans messages out to them.
package realtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fleetwatch/pkg/logging"
)

// EvictionConfig controls the idle sweeps. Report clients idle longer
// legitimately while waiting for periodic refreshes, so they get a
// more lenient threshold.
type EvictionConfig struct {
	SweepInterval       time.Duration
	IdleTimeout         time.Duration
	ReportSweepInterval time.Duration
	ReportIdleTimeout   time.Duration
}

// DefaultEvictionConfig returns the standard sweep timings
func DefaultEvictionConfig() EvictionConfig {
	return EvictionConfig{
		SweepInterval:       60 * time.Second,
		IdleTimeout:         5 * time.Minute,
		ReportSweepInterval: 15 * time.Minute,
		ReportIdleTimeout:   30 * time.Minute,
	}
}

// MessageHandler receives parsed inbound client messages
type MessageHandler func(c *Client, msg InboundMessage)

// Seeder runs when a client registers, typically to replay cached
// snapshots so new dashboards render without waiting for a change.
type Seeder func(c *Client)

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	handler MessageHandler
	seeder  Seeder

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once

	logger logging.Logger
	cfg    EvictionConfig

	connectedClients *prometheus.GaugeVec
	evictionsTotal   *prometheus.CounterVec
}

// NewHub creates a Hub with the given eviction settings. The metric
// vecs may be nil when metrics are not wired.
func NewHub(logger logging.Logger, cfg EvictionConfig, connected *prometheus.GaugeVec, evictions *prometheus.CounterVec) *Hub {
	return &Hub{
		clients:          make(map[*Client]bool),
		register:         make(chan *Client),
		unregister:       make(chan *Client, 16),
		broadcast:        make(chan []byte, 256),
		done:             make(chan struct{}),
		logger:           logger,
		cfg:              cfg,
		connectedClients: connected,
		evictionsTotal:   evictions,
	}
}

// SetMessageHandler installs the inbound message dispatcher. Must be
// called before clients connect.
func (h *Hub) SetMessageHandler(fn MessageHandler) {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
}

// SetSeeder installs the registration hook. Must be called before
// clients connect.
func (h *Hub) SetSeeder(fn Seeder) {
	h.mu.Lock()
	h.seeder = fn
	h.mu.Unlock()
}

func (h *Hub) dispatch(c *Client, msg InboundMessage) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	if handler != nil {
		handler(c, msg)
	}
}

// Register queues a client for registration
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Run processes register, unregister and broadcast events until Stop
func (h *Hub) Run() {
	generalSweep := time.NewTicker(h.cfg.SweepInterval)
	reportSweep := time.NewTicker(h.cfg.ReportSweepInterval)
	defer generalSweep.Stop()
	defer reportSweep.Stop()

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.closeSend()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			seeder := h.seeder
			h.mu.Unlock()

			h.logger.WithFields(logging.Fields{
				"client_id": client.ID,
				"kind":      kindLabel(client.Kind),
				"total":     total,
			}).Info("Client connected")
			h.updateGauges()

			if seeder != nil {
				seeder(client)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				client.closeSend()
			}
			total := len(h.clients)
			h.mu.Unlock()

			if ok {
				h.logger.WithFields(logging.Fields{
					"client_id": client.ID,
					"total":     total,
				}).Info("Client disconnected")
				h.updateGauges()
			}

		case message := <-h.broadcast:
			// Dataset broadcasts reach every dashboard client. Rooms
			// only scope the join-time cache replay; delivery is not
			// filtered by membership.
			h.mu.Lock()
			for client := range h.clients {
				if client.Kind != KindDashboard {
					continue
				}
				select {
				case client.send <- message:
				default:
					client.closeSend()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
			h.updateGauges()

		case <-generalSweep.C:
			h.evictIdle(KindDashboard, h.cfg.IdleTimeout)

		case <-reportSweep.C:
			h.evictIdle(KindReport, h.cfg.ReportIdleTimeout)
		}
	}
}

// Stop shuts the hub down and closes all client send channels
func (h *Hub) Stop() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) evictIdle(kind Kind, timeout time.Duration) {
	cutoff := time.Now().Add(-timeout)

	h.mu.Lock()
	var evicted []*Client
	for client := range h.clients {
		if client.Kind != kind {
			continue
		}
		if client.LastActivity().Before(cutoff) {
			delete(h.clients, client)
			client.closeSend()
			evicted = append(evicted, client)
		}
	}
	h.mu.Unlock()

	for _, client := range evicted {
		h.logger.WithFields(logging.Fields{
			"client_id": client.ID,
			"idle":      time.Since(client.LastActivity()).Round(time.Second),
		}).Info("Evicting idle client")
		if h.evictionsTotal != nil {
			h.evictionsTotal.WithLabelValues(kindLabel(kind)).Inc()
		}
		client.conn.Close()
	}
	if len(evicted) > 0 {
		h.updateGauges()
	}
}

func (h *Hub) updateGauges() {
	if h.connectedClients == nil {
		return
	}
	var dashboards, reports float64
	h.mu.RLock()
	for client := range h.clients {
		if client.Kind == KindReport {
			reports++
		} else {
			dashboards++
		}
	}
	h.mu.RUnlock()
	h.connectedClients.WithLabelValues(kindLabel(KindDashboard)).Set(dashboards)
	h.connectedClients.WithLabelValues(kindLabel(KindReport)).Set(reports)
}

func kindLabel(kind Kind) string {
	if kind == KindReport {
		return "report"
	}
	return "dashboard"
}

// Broadcast queues a message for every dashboard client
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// ForEach runs fn for every connected client of the given kind
func (h *Hub) ForEach(kind Kind, fn func(c *Client)) {
	for _, client := range h.snapshot(kind) {
		fn(client)
	}
}

// ClientCount returns the number of connected clients of a kind
func (h *Hub) ClientCount(kind Kind) int {
	return len(h.snapshot(kind))
}

func (h *Hub) snapshot(kind Kind) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.Kind == kind {
			out = append(out, client)
		}
	}
	return out
}
