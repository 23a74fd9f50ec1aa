package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fleetwatch/internal/resources"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Kind distinguishes dashboard clients from report clients, which
// have their own idle thresholds and personalized delivery.
type Kind int

const (
	KindDashboard Kind = iota
	KindReport
)

// InboundMessage is the envelope clients send over the socket
type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one connected websocket session
type Client struct {
	ID   string
	Kind Kind

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu           sync.RWMutex
	closed       bool
	rooms        map[string]bool
	filters      map[resources.ReportKind]models.FilterParams
	lastReports  map[resources.ReportKind][]byte
	lastActivity time.Time
}

// NewClient wraps an upgraded websocket connection
func NewClient(hub *Hub, conn *websocket.Conn, kind Kind) *Client {
	return &Client{
		ID:           uuid.New().String(),
		Kind:         kind,
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		rooms:        make(map[string]bool),
		filters:      make(map[resources.ReportKind]models.FilterParams),
		lastReports:  make(map[resources.ReportKind][]byte),
		lastActivity: time.Now(),
	}
}

// Touch records client activity for idle eviction
func (c *Client) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the time of the last inbound application message
func (c *Client) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// JoinRoom subscribes the client to a named room
func (c *Client) JoinRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

// LeaveRoom unsubscribes the client from a room
func (c *Client) LeaveRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// InRoom reports whether the client has joined the room
func (c *Client) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// SetFilters records the client's report filters for a kind. They are
// replayed on every periodic refresh until the client disconnects.
func (c *Client) SetFilters(kind resources.ReportKind, f models.FilterParams) {
	c.mu.Lock()
	c.filters[kind] = f
	c.mu.Unlock()
}

// Filters returns the recorded filters for a kind, if any
func (c *Client) Filters(kind resources.ReportKind) (models.FilterParams, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.filters[kind]
	return f, ok
}

// SetLastReport stores the client's last validated report payload for
// a kind, used as its personal fallback when a recompute fails.
func (c *Client) SetLastReport(kind resources.ReportKind, message []byte) {
	c.mu.Lock()
	c.lastReports[kind] = message
	c.mu.Unlock()
}

// LastReport returns the client's last validated report for a kind
func (c *Client) LastReport(kind resources.ReportKind) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msg, ok := c.lastReports[kind]
	return msg, ok
}

// Send queues a raw message for delivery. A full send buffer drops
// the client rather than blocking the caller.
func (c *Client) Send(message []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		select {
		case c.hub.unregister <- c:
		default:
		}
		return false
	}
}

// closeSend marks the client closed and closes its send channel.
// Only the hub calls this, exactly once per client.
func (c *Client) closeSend() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// SendEvent marshals and queues a named event with a payload
func (c *Client) SendEvent(event string, payload interface{}) bool {
	msg, err := json.Marshal(map[string]interface{}{
		"event":     event,
		"data":      payload,
		"timestamp": resources.Timestamp(),
	})
	if err != nil {
		c.hub.logger.WithFields(logging.Fields{
			"client_id": c.ID,
			"event":     event,
			"error":     err,
		}).Error("Failed to marshal outbound event")
		return false
	}
	return c.Send(msg)
}

// SendJSON marshals and queues an arbitrary message
func (c *Client) SendJSON(v interface{}) bool {
	msg, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.WithFields(logging.Fields{
			"client_id": c.ID,
			"error":     err,
		}).Error("Failed to marshal outbound message")
		return false
	}
	return c.Send(msg)
}

// ReadPump pumps messages from the websocket to the hub's message
// handler. It runs in a per-connection goroutine; the application
// ensures at most one reader per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// Pongs extend the read deadline but do not count as activity:
	// the ping loop keeps the transport alive forever, so letting
	// pongs touch lastActivity would defeat idle eviction. Only
	// application messages mark a client active.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.WithFields(logging.Fields{
					"client_id": c.ID,
					"error":     err,
				}).Warn("Unexpected websocket close")
			}
			break
		}

		c.Touch()

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.logger.WithFields(logging.Fields{
				"client_id": c.ID,
				"error":     err,
			}).Warn("Dropping unparseable client message")
			continue
		}
		c.hub.dispatch(c, msg)
	}
}

// WritePump pumps messages from the send channel to the websocket and
// keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
