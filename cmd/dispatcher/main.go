package main

import (
	"context"
	"os"
	"time"

	"fleetwatch/internal/broadcast"
	"fleetwatch/internal/handlers"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/realtime"
	"fleetwatch/internal/store"
	"fleetwatch/internal/watch"
	"fleetwatch/pkg/config"
	"fleetwatch/pkg/database"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/monitoring"
	"fleetwatch/pkg/server"
	"fleetwatch/pkg/version"
)

const (
	broadcastRefreshDefault = 5 * time.Second
	summaryIntervalDefault  = 5 * time.Minute
	earningsIntervalDefault = 10 * time.Minute
)

func main() {
	logger := logging.NewLoggerWithService("dispatcher")
	config.LoadEnv(logger)

	logger.WithFields(logging.Fields{
		"version": version.Short(),
	}).Info("Starting dispatcher")

	port := config.GetEnv("PORT", "18010")
	mongoURI := config.RequireEnv("MONGO_URI")
	mongoDB := config.GetEnv("MONGO_DB", "fleetwatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := database.Connect(ctx, mongoURI, logger)
	if err != nil {
		logger.WithFields(logging.Fields{"error": err}).Error("Mongo connection failed")
		os.Exit(1)
	}
	db := client.Database(mongoDB)

	healthChecker := monitoring.NewHealthChecker("dispatcher", version.Version)
	healthChecker.AddCheck("mongodb", monitoring.MongoHealthCheck(client))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"MONGO_URI": mongoURI,
		"PORT":      port,
	}))

	metricsCollector := monitoring.NewMetricsCollector("dispatcher", version.Version, version.GitCommit)
	serviceMetrics := metrics.NewService(metricsCollector)

	st := store.New(db, logger).
		WithMetrics(serviceMetrics.SnapshotQueries, serviceMetrics.SnapshotDuration)

	evictionCfg := realtime.EvictionConfig{
		SweepInterval:       config.GetEnvDuration("SWEEP_INTERVAL", realtime.DefaultEvictionConfig().SweepInterval),
		IdleTimeout:         config.GetEnvDuration("SESSION_IDLE_TIMEOUT", realtime.DefaultEvictionConfig().IdleTimeout),
		ReportSweepInterval: config.GetEnvDuration("REPORT_SWEEP_INTERVAL", realtime.DefaultEvictionConfig().ReportSweepInterval),
		ReportIdleTimeout:   config.GetEnvDuration("REPORT_IDLE_TIMEOUT", realtime.DefaultEvictionConfig().ReportIdleTimeout),
	}
	hub := realtime.NewHub(logger, evictionCfg, serviceMetrics.ConnectedClients, serviceMetrics.EvictionsTotal)
	go hub.Run()
	defer hub.Stop()

	cache := broadcast.NewCache()
	engine := broadcast.NewEngine(st, hub, cache, logger, broadcast.Metrics{
		BroadcastsTotal: serviceMetrics.BroadcastsTotal,
		TriggersSkipped: serviceMetrics.TriggersSkipped,
		CycleDuration:   serviceMetrics.CycleDuration,
	}, config.GetEnvDuration("PERIODIC_REFRESH_INTERVAL", broadcastRefreshDefault))

	policy := store.ChangePolicy{
		CapPercent:   config.GetEnvFloat("CHANGE_CAP_PERCENT", store.DefaultChangePolicy().CapPercent),
		ZeroBaseline: store.DefaultChangePolicy().ZeroBaseline,
	}
	reportEngine := broadcast.NewReportEngine(st, hub, logger, policy,
		config.GetEnvDuration("SUMMARY_BROADCAST_INTERVAL", summaryIntervalDefault),
		config.GetEnvDuration("EARNINGS_BROADCAST_INTERVAL", earningsIntervalDefault))

	watchCfg := watch.Config{
		ReconnectDelay: config.GetEnvDuration("WATCH_RECONNECT_DELAY", watch.DefaultConfig().ReconnectDelay),
		PollInterval:   config.GetEnvDuration("POLL_INTERVAL", watch.DefaultConfig().PollInterval),
	}
	watcher := watch.New(db, st, logger, watchCfg).
		WithMetrics(serviceMetrics.WatchEvents, serviceMetrics.WatchReconnects)

	hub.SetSeeder(engine.Seeder())

	h := handlers.New(logger, hub, engine, reportEngine, st, cache)
	hub.SetMessageHandler(h.MessageHandler())

	go watcher.Run(ctx)
	go engine.Run(ctx, watcher.Events())
	go reportEngine.Run(ctx)

	router := server.SetupServiceRouter(logger, "dispatcher", healthChecker, metricsCollector)
	h.RegisterRoutes(router)

	srv := server.New(server.DefaultConfig(port), router, logger)
	if err := srv.Start(func(shutdownCtx context.Context) error {
		cancel()
		database.Disconnect(shutdownCtx, client, logger)
		return nil
	}); err != nil {
		logger.WithFields(logging.Fields{"error": err}).Error("Server exited with error")
		os.Exit(1)
	}
}
