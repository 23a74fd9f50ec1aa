package broadcast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fleetwatch/internal/realtime"
	"fleetwatch/internal/resources"
	"fleetwatch/internal/store"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

type fakeReportProvider struct {
	mu       sync.Mutex
	err      error
	earnings int
	summary  int
}

func (f *fakeReportProvider) EarningsReport(ctx context.Context, filters models.FilterParams, policy store.ChangePolicy) (*models.EarningsReport, error) {
	f.mu.Lock()
	f.earnings++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &models.EarningsReport{ChartData: []models.ChartPoint{}, Filters: filters}, nil
}

func (f *fakeReportProvider) DriverPerformanceReport(ctx context.Context, filters models.FilterParams) (*models.DriverPerformanceReport, error) {
	return &models.DriverPerformanceReport{TableData: []models.DriverPerformanceRow{}, Filters: filters}, nil
}

func (f *fakeReportProvider) RidesAnalysisReport(ctx context.Context, filters models.FilterParams) (*models.RidesAnalysisReport, error) {
	return &models.RidesAnalysisReport{ChartData: []models.ChartPoint{}, Filters: filters}, nil
}

func (f *fakeReportProvider) SummaryReport(ctx context.Context, filters models.FilterParams, policy store.ChangePolicy) (*models.SummaryReport, error) {
	f.mu.Lock()
	f.summary++
	f.mu.Unlock()
	var earnings float64
	var rides int64
	return &models.SummaryReport{TotalEarnings: &earnings, TotalRides: &rides, Filters: filters}, nil
}

func dialReportClient(t *testing.T, hub *realtime.Hub) (*websocket.Conn, *realtime.Client) {
	t.Helper()

	clientCh := make(chan *realtime.Client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		client := realtime.NewClient(hub, conn, realtime.KindReport)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
		clientCh <- client
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	client := <-clientCh
	waitFor(t, func() bool { return hub.ClientCount(realtime.KindReport) > 0 })
	return conn, client
}

func newReportEngine(t *testing.T, provider ReportProvider, hub *realtime.Hub) *ReportEngine {
	t.Helper()
	return NewReportEngine(provider, hub, logging.NewLogger(), store.DefaultChangePolicy(), 30*time.Millisecond, time.Hour)
}

func TestReportRequestSendsData(t *testing.T) {
	hub := newTestHub(t)
	conn, client := dialReportClient(t, hub)

	provider := &fakeReportProvider{}
	engine := newReportEngine(t, provider, hub)

	engine.HandleRequest(context.Background(), client, resources.Earnings, models.FilterParams{TimeRange: "week"})

	msg := readEvent(t, conn)
	if msg["event"] != "earningsData" {
		t.Fatalf("expected earningsData, got %v", msg)
	}

	if _, ok := client.Filters(resources.Earnings); !ok {
		t.Fatal("filters must be recorded for periodic refreshes")
	}
}

func (f *fakeReportProvider) setError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestReportRequestFallsBackToOwnLastReport(t *testing.T) {
	hub := newTestHub(t)
	conn, client := dialReportClient(t, hub)

	provider := &fakeReportProvider{}
	engine := newReportEngine(t, provider, hub)

	engine.HandleRequest(context.Background(), client, resources.Earnings, models.FilterParams{TimeRange: "day"})
	first := readEvent(t, conn)
	if first["event"] != "earningsData" {
		t.Fatalf("expected fresh report, got %v", first)
	}

	provider.setError(errors.New("aggregation failed"))
	engine.HandleRequest(context.Background(), client, resources.Earnings, models.FilterParams{TimeRange: "day"})

	second := readEvent(t, conn)
	if second["event"] != "earningsData" {
		t.Fatalf("expected the client's cached report, got %v", second)
	}
}

func TestReportRequestAppliesDefaultFilters(t *testing.T) {
	hub := newTestHub(t)
	conn, client := dialReportClient(t, hub)

	provider := &fakeReportProvider{}
	engine := newReportEngine(t, provider, hub)

	engine.HandleRequest(context.Background(), client, resources.ReportsSummary, models.FilterParams{})

	msg := readEvent(t, conn)
	data, _ := msg["data"].(map[string]interface{})
	filters, _ := data["filters"].(map[string]interface{})
	if filters["timeRange"] != "day" {
		t.Fatalf("summary should default to a one day range, got %v", msg)
	}
	if filters["driverFilter"] != "all" {
		t.Fatalf("driver filter should default to all, got %v", msg)
	}

	if f, _ := client.Filters(resources.ReportsSummary); f.TimeRange != "day" {
		t.Fatalf("recorded filters must include defaults, got %+v", f)
	}
}

func TestReportRequestFailureSendsErrorAndZeroedDefaults(t *testing.T) {
	hub := newTestHub(t)
	conn, client := dialReportClient(t, hub)

	provider := &fakeReportProvider{err: errors.New("aggregation failed")}
	engine := newReportEngine(t, provider, hub)

	engine.HandleRequest(context.Background(), client, resources.Earnings, models.FilterParams{})

	msg := readEvent(t, conn)
	if msg["event"] != "reportError" {
		t.Fatalf("expected reportError, got %v", msg)
	}

	// With nothing cached for this client, the error is followed by
	// the kind's zeroed defaults so the view still has a structure to
	// render.
	zeroed := readEvent(t, conn)
	if zeroed["event"] != "earningsData" {
		t.Fatalf("expected zeroed earnings defaults, got %v", zeroed)
	}
	data, _ := zeroed["data"].(map[string]interface{})
	if data["hasData"] != false {
		t.Fatalf("zeroed defaults must carry hasData false, got %v", zeroed)
	}
	if _, ok := data["chartData"].([]interface{}); !ok {
		t.Fatalf("zeroed defaults must carry an empty chart array, got %v", zeroed)
	}
}

func TestPeriodicRefreshSkipsClientsWithoutFilters(t *testing.T) {
	hub := newTestHub(t)
	subscribedConn, subscribed := dialReportClient(t, hub)
	idleConn, _ := dialReportClient(t, hub)

	provider := &fakeReportProvider{}
	engine := newReportEngine(t, provider, hub)

	subscribed.SetFilters(resources.ReportsSummary, models.FilterParams{TimeRange: "day"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Run(ctx)

	msg := readEvent(t, subscribedConn)
	if msg["event"] != "reportsSummaryUpdate" {
		t.Fatalf("expected periodic summary update, got %v", msg)
	}

	idleConn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := idleConn.ReadMessage(); err == nil {
		t.Fatal("client without recorded filters must be skipped")
	}
}

func TestPeriodicRefreshUsesRecordedFilters(t *testing.T) {
	hub := newTestHub(t)
	conn, client := dialReportClient(t, hub)

	provider := &fakeReportProvider{}
	engine := newReportEngine(t, provider, hub)

	client.SetFilters(resources.ReportsSummary, models.FilterParams{TimeRange: "month", DriverFilter: "all"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Run(ctx)

	msg := readEvent(t, conn)
	data, _ := msg["data"].(map[string]interface{})
	filters, _ := data["filters"].(map[string]interface{})
	if filters["timeRange"] != "month" {
		t.Fatalf("refresh must replay the client's own filters, got %v", msg)
	}
}
