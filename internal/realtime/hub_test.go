package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fleetwatch/internal/resources"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logging.NewLogger(), DefaultEvictionConfig(), nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func dialTestClient(t *testing.T, hub *Hub, kind Kind) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		client := NewClient(hub, conn, kind)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, kind Kind, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount(kind) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d clients of kind %v, got %d", want, kind, hub.ClientCount(kind))
}

func TestHubBroadcastReachesDashboardClients(t *testing.T) {
	hub := newTestHub(t)

	conn1 := dialTestClient(t, hub, KindDashboard)
	conn2 := dialTestClient(t, hub, KindDashboard)
	waitForClients(t, hub, KindDashboard, 2)

	hub.Broadcast([]byte(`{"event":"vehiclesUpdate"}`))

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if !strings.Contains(string(msg), "vehiclesUpdate") {
			t.Fatalf("unexpected message: %s", msg)
		}
	}
}

func TestHubBroadcastSkipsReportClients(t *testing.T) {
	hub := newTestHub(t)

	reportConn := dialTestClient(t, hub, KindReport)
	waitForClients(t, hub, KindReport, 1)

	hub.Broadcast([]byte(`{"event":"vehiclesUpdate"}`))

	reportConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := reportConn.ReadMessage(); err == nil {
		t.Fatal("report client should not receive dashboard broadcasts")
	}
}

func TestSeederRunsOnRegister(t *testing.T) {
	hub := newTestHub(t)

	seeded := make(chan string, 1)
	hub.SetSeeder(func(c *Client) {
		c.SendEvent("vehiclesUpdate", []string{"cached"})
		seeded <- c.ID
	})

	conn := dialTestClient(t, hub, KindDashboard)

	select {
	case <-seeded:
	case <-time.After(2 * time.Second):
		t.Fatal("seeder did not run")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(msg), "cached") {
		t.Fatalf("expected seeded payload, got %s", msg)
	}
}

func TestMessageHandlerDispatch(t *testing.T) {
	hub := newTestHub(t)

	received := make(chan InboundMessage, 1)
	hub.SetMessageHandler(func(c *Client, msg InboundMessage) {
		received <- msg
	})

	conn := dialTestClient(t, hub, KindDashboard)
	waitForClients(t, hub, KindDashboard, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-room","data":"vehicles"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Event != "join-room" {
			t.Fatalf("unexpected event %s", msg.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not receive message")
	}
}

func TestClientFiltersRecorded(t *testing.T) {
	c := &Client{
		rooms:   make(map[string]bool),
		filters: make(map[resources.ReportKind]models.FilterParams),
	}

	if _, ok := c.Filters(resources.Earnings); ok {
		t.Fatal("expected no filters before first request")
	}

	c.SetFilters(resources.Earnings, models.FilterParams{TimeRange: "month"})
	f, ok := c.Filters(resources.Earnings)
	if !ok || f.TimeRange != "month" {
		t.Fatalf("filters not recorded: %+v ok=%v", f, ok)
	}

	if _, ok := c.Filters(resources.RidesAnalysis); ok {
		t.Fatal("filters must be scoped per report kind")
	}
}

func TestClientRooms(t *testing.T) {
	c := &Client{
		rooms:   make(map[string]bool),
		filters: make(map[resources.ReportKind]models.FilterParams),
	}

	c.JoinRoom("vehicles")
	if !c.InRoom("vehicles") {
		t.Fatal("expected membership after join")
	}
	c.LeaveRoom("vehicles")
	if c.InRoom("vehicles") {
		t.Fatal("expected no membership after leave")
	}
}

func TestSendAfterCloseReturnsFalse(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.closeSend()
	if c.Send([]byte("x")) {
		t.Fatal("send after close must fail")
	}
}

func TestIdleEviction(t *testing.T) {
	hub := NewHub(logging.NewLogger(), EvictionConfig{
		SweepInterval:       20 * time.Millisecond,
		IdleTimeout:         50 * time.Millisecond,
		ReportSweepInterval: time.Hour,
		ReportIdleTimeout:   time.Hour,
	}, nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	dialTestClient(t, hub, KindDashboard)
	waitForClients(t, hub, KindDashboard, 1)

	// No activity: the sweep should drop the client once it goes idle.
	waitForClients(t, hub, KindDashboard, 0)
}

func TestPongsDoNotCountAsActivity(t *testing.T) {
	hub := NewHub(logging.NewLogger(), EvictionConfig{
		SweepInterval:       20 * time.Millisecond,
		IdleTimeout:         80 * time.Millisecond,
		ReportSweepInterval: time.Hour,
		ReportIdleTimeout:   time.Hour,
	}, nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	conn := dialTestClient(t, hub, KindDashboard)
	waitForClients(t, hub, KindDashboard, 1)

	// Pongs keep the transport alive but are not application
	// activity; a connection that only answers pings must still be
	// swept as idle.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount(KindDashboard) == 0 {
			return
		}
		conn.WriteMessage(websocket.PongMessage, nil)
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("client sending only pongs must be evicted as idle")
}

func TestHeartbeatMessagesKeepClientAlive(t *testing.T) {
	hub := NewHub(logging.NewLogger(), EvictionConfig{
		SweepInterval:       20 * time.Millisecond,
		IdleTimeout:         60 * time.Millisecond,
		ReportSweepInterval: time.Hour,
		ReportIdleTimeout:   time.Hour,
	}, nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	conn := dialTestClient(t, hub, KindDashboard)
	waitForClients(t, hub, KindDashboard, 1)

	stop := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(stop) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"client-heartbeat"}`)); err != nil {
			t.Fatalf("heartbeat write failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if hub.ClientCount(KindDashboard) != 1 {
		t.Fatal("client sending heartbeats must not be evicted")
	}
}
