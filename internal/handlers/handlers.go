// Package handlers wires the HTTP and websocket endpoints to the hub
// and the broadcast engines.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fleetwatch/internal/broadcast"
	"fleetwatch/internal/realtime"
	"fleetwatch/internal/resources"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

const requestTimeout = 10 * time.Second

// Handlers holds the dependencies for the service endpoints
type Handlers struct {
	logger       logging.Logger
	hub          *realtime.Hub
	engine       *broadcast.Engine
	reportEngine *broadcast.ReportEngine
	provider     broadcast.SnapshotProvider
	cache        *broadcast.Cache
	upgrader     websocket.Upgrader
}

// New creates the handler set
func New(logger logging.Logger, hub *realtime.Hub, engine *broadcast.Engine, reportEngine *broadcast.ReportEngine, provider broadcast.SnapshotProvider, cache *broadcast.Cache) *Handlers {
	return &Handlers{
		logger:       logger,
		hub:          hub,
		engine:       engine,
		reportEngine: reportEngine,
		provider:     provider,
		cache:        cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from separate origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Dashboard upgrades a dashboard connection and hands it to the hub
func (h *Handlers) Dashboard(c *gin.Context) {
	h.serveWS(c, realtime.KindDashboard)
}

// Reports upgrades a report connection and hands it to the hub
func (h *Handlers) Reports(c *gin.Context) {
	h.serveWS(c, realtime.KindReport)
}

func (h *Handlers) serveWS(c *gin.Context, kind realtime.Kind) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"error":     err,
			"client_ip": c.ClientIP(),
		}).Error("Websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, kind)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// Stats reports connection and cache counts
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dashboardClients": h.hub.ClientCount(realtime.KindDashboard),
		"reportClients":    h.hub.ClientCount(realtime.KindReport),
		"cachedResources":  h.cache.Len(),
	})
}

// Refresh triggers broadcast cycles on demand, for operators and for
// services that mutate collections outside the watched path.
func (h *Handlers) Refresh(c *gin.Context) {
	var body struct {
		Models []string `json:"models"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Models) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "models list required"})
		return
	}

	triggered := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		rt := resources.ResourceType(m)
		if !resources.Valid(rt) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown model " + m})
			return
		}
		// Cycles outlive the HTTP request, so they get their own context.
		h.engine.Trigger(context.Background(), rt)
		triggered = append(triggered, m)
	}

	c.JSON(http.StatusOK, gin.H{"triggered": triggered})
}

// NotFound is the fallback route
func (h *Handlers) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

// MessageHandler returns the inbound websocket message dispatcher
func (h *Handlers) MessageHandler() realtime.MessageHandler {
	return func(c *realtime.Client, msg realtime.InboundMessage) {
		switch msg.Event {
		case "join-room":
			h.handleJoinRoom(c, msg.Data)
		case "client-connected":
			h.logger.WithFields(logging.Fields{"client_id": c.ID}).Debug("Client announced itself")
		case "client-heartbeat":
			c.SendEvent("server-heartbeat", map[string]string{"clientId": c.ID})
		case "getLatestData":
			h.handleGetLatestData(c, msg.Data)
		case "refresh-data":
			h.handleRefreshData(c, msg.Data)
		case resources.Earnings.RequestEvent():
			h.handleReportRequest(c, resources.Earnings, msg.Data)
		case resources.DriverPerformance.RequestEvent():
			h.handleReportRequest(c, resources.DriverPerformance, msg.Data)
		case resources.RidesAnalysis.RequestEvent():
			h.handleReportRequest(c, resources.RidesAnalysis, msg.Data)
		case resources.ReportsSummary.RequestEvent():
			h.handleReportRequest(c, resources.ReportsSummary, msg.Data)
		default:
			h.logger.WithFields(logging.Fields{
				"client_id": c.ID,
				"event":     msg.Event,
			}).Debug("Ignoring unknown client event")
		}
	}
}

func (h *Handlers) handleJoinRoom(c *realtime.Client, data json.RawMessage) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil || room == "" {
		return
	}
	c.JoinRoom(room)
	c.SendEvent("server-welcome", map[string]string{"room": room, "clientId": c.ID})

	// First paint: replay the room's last good payload right away
	// instead of waiting for the next change or timer.
	if rt := resources.ResourceType(room); resources.Valid(rt) {
		if p, ok := h.cache.Get(rt); ok {
			c.Send(p.Message)
		}
	}
}

// handleGetLatestData answers a single client with a fresh snapshot,
// falling back to the cached payload like a regular broadcast cycle.
func (h *Handlers) handleGetLatestData(c *realtime.Client, data json.RawMessage) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	rt := resources.ResourceType(req.Model)
	if !resources.Valid(rt) {
		c.SendEvent("reportError", map[string]string{"message": "unknown model " + req.Model})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	snapshot, err := h.provider.Snapshot(ctx, rt)
	if err != nil || !broadcast.Validate(rt, snapshot) {
		if p, ok := h.cache.Get(rt); ok {
			c.Send(p.Message)
			return
		}
		c.SendJSON(resources.NewEmptyEnvelope(rt, "no data available"))
		return
	}

	c.SendJSON(resources.NewEnvelope(rt, broadcast.Normalize(rt, snapshot)))
}

func (h *Handlers) handleRefreshData(c *realtime.Client, data json.RawMessage) {
	var req struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	for _, m := range req.Models {
		rt := resources.ResourceType(m)
		if resources.Valid(rt) {
			h.engine.Trigger(context.Background(), rt)
		}
	}
}

func (h *Handlers) handleReportRequest(c *realtime.Client, kind resources.ReportKind, data json.RawMessage) {
	var filters models.FilterParams
	if len(data) > 0 {
		if err := json.Unmarshal(data, &filters); err != nil {
			c.SendEvent("reportError", map[string]string{
				"kind":    string(kind),
				"message": "invalid filters",
			})
			return
		}
	}
	if err := filters.Validate(); err != nil {
		c.SendEvent("reportError", map[string]string{
			"kind":    string(kind),
			"message": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	h.reportEngine.HandleRequest(ctx, c, kind, filters)
}

// RegisterRoutes attaches the service endpoints to the router
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.Dashboard)
	router.GET("/ws/reports", h.Reports)

	api := router.Group("/api")
	{
		api.GET("/stats", h.Stats)
		api.POST("/refresh", h.Refresh)
	}

	router.NoRoute(h.NotFound)
}
