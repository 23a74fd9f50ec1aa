package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"fleetwatch/pkg/config"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/middleware"
	"fleetwatch/pkg/monitoring"
	"fleetwatch/pkg/version"
)

// Config holds HTTP server configuration
type Config struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a server config with sane defaults
func DefaultConfig(port string) Config {
	return Config{
		Port:            port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// SetupServiceRouter creates a gin router with the standard service
// middleware and operational endpoints wired in.
func SetupServiceRouter(logger logging.Logger, serviceName string, healthChecker *monitoring.HealthChecker, metricsCollector *monitoring.MetricsCollector) *gin.Engine {
	if config.GetEnv("GIN_MODE", "release") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())

	if metricsCollector != nil {
		router.Use(metricsCollector.MetricsMiddleware())
		router.GET("/metrics", metricsCollector.Handler())
	}

	if healthChecker != nil {
		router.GET("/health", healthChecker.Handler())
	}

	router.GET("/version", func(c *gin.Context) {
		info := version.Get()
		info.Service = serviceName
		c.JSON(http.StatusOK, info)
	})

	return router
}

// Server wraps an http.Server with graceful shutdown handling
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
	cfg        Config
}

// New creates a Server serving the given handler
func New(cfg Config, handler http.Handler, logger logging.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: logger,
		cfg:    cfg,
	}
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
// The onShutdown hooks run after the HTTP listener has drained.
func (s *Server) Start(onShutdown ...func(ctx context.Context) error) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.WithFields(logging.Fields{
			"addr": s.httpServer.Addr,
		}).Info("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		s.logger.WithFields(logging.Fields{
			"signal": sig.String(),
		}).Info("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithFields(logging.Fields{"error": err}).Error("HTTP server shutdown error")
	}

	for _, hook := range onShutdown {
		if err := hook(ctx); err != nil {
			s.logger.WithFields(logging.Fields{"error": err}).Error("Shutdown hook error")
		}
	}

	s.logger.Info("Server stopped")
	return nil
}
