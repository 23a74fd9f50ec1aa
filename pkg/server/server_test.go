package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/monitoring"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("18010")
	if cfg.Port != "18010" {
		t.Fatalf("expected port 18010, got %s", cfg.Port)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
}

func TestSetupServiceRouterHealthEndpoint(t *testing.T) {
	logger := logging.NewLogger()
	hc := monitoring.NewHealthChecker("test-router", "1.0.0")
	hc.AddCheck("ok", func() monitoring.CheckResult {
		return monitoring.CheckResult{Status: monitoring.StatusHealthy}
	})

	router := SetupServiceRouter(logger, "test-router", hc, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from health endpoint, got %d", w.Code)
	}
}

func TestSetupServiceRouterVersionEndpoint(t *testing.T) {
	logger := logging.NewLogger()
	router := SetupServiceRouter(logger, "test-router", nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from version endpoint, got %d", w.Code)
	}
}

func TestSetupServiceRouterMetricsEndpoint(t *testing.T) {
	logger := logging.NewLogger()
	mc := monitoring.NewMetricsCollector("test_router_metrics", "1.0.0", "abc1234")
	router := SetupServiceRouter(logger, "test-router", nil, mc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", w.Code)
	}
}
