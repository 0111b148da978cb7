package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/davido182/depositdigest/internal/api"
	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/health"
	"github.com/davido182/depositdigest/internal/middleware"
	"github.com/davido182/depositdigest/internal/repository"
	"github.com/davido182/depositdigest/internal/scheduler"
	"github.com/davido182/depositdigest/internal/security"
	"github.com/davido182/depositdigest/internal/service"
	"github.com/davido182/depositdigest/internal/storage"
	"github.com/davido182/depositdigest/internal/websocket"
	"github.com/davido182/depositdigest/pkg/config"
	"github.com/davido182/depositdigest/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger.SetDefault(logger.NewLogger(logger.ParseLevel(cfg.LogLevel), os.Stdout, cfg.LogJSON))
	logger.Info("Starting DepositDigest monitoring", map[string]interface{}{
		"app":   cfg.AppName,
		"port":  cfg.Port,
		"store": cfg.StoreBackend,
	})

	// Initialize database (archive tables, event log, optional KV backend)
	if err := repository.InitDB(cfg); err != nil {
		logger.Fatal("Failed to initialize database", err, nil)
	}
	db := repository.GetDB()

	var probes []health.Probe
	probes = append(probes, health.PingProbe("database", repository.GetDBProvider()))
	if cfg.AuthServiceURL != "" {
		probes = append(probes, health.HTTPProbe("auth_service", cfg.AuthServiceURL, &http.Client{Timeout: health.DefaultProbeTimeout}))
	}

	// Key-value store backing the capped streams
	var kv storage.KVStore
	switch strings.ToLower(cfg.StoreBackend) {
	case "redis":
		redisStore, err := storage.NewRedisStore(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Redis", err, nil)
		}
		defer redisStore.Close()
		kv = redisStore
		probes = append(probes, health.PingProbe("redis", redisStore))
	case "database":
		kv = repository.NewKVRepository(db)
	default:
		kv = storage.NewMemoryStore()
	}

	// Event storage: database always, InfluxDB when configured
	var eventStorage events.EventStorage = events.NewDatabaseEventStorage(db)
	var influxClient *storage.InfluxDBClient
	if cfg.InfluxDBURL != "" && cfg.InfluxDBToken != "" {
		client, err := storage.NewInfluxDBClient(storage.InfluxDBConfig{
			URL:    cfg.InfluxDBURL,
			Token:  cfg.InfluxDBToken,
			Org:    cfg.InfluxDBOrg,
			Bucket: cfg.InfluxDBBucket,
		})
		if err != nil {
			logger.Warn("InfluxDB unavailable, time-series export disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			influxClient = client
			defer influxClient.Close()
			eventStorage = events.NewMultiEventStorage(eventStorage, events.NewInfluxDBEventStorage(influxClient))
			probes = append(probes, health.PingProbe("influxdb", influxClient))
		}
	}
	dbEvents := events.NewDatabaseEventStorage(db)
	bus := events.NewEventBus(eventStorage)

	archive := repository.NewArchiveRepository(db)

	deps := service.Dependencies{
		KV:                 kv,
		Config:             cfg,
		Publisher:          bus,
		Archive:            archive,
		ReachabilityProbes: probes,
		Pruners: map[string]service.Pruner{
			"archive":       archive.DeleteOlderThan,
			"system_events": dbEvents.DeleteBefore,
		},
	}
	if influxClient != nil {
		deps.PerformanceSink = influxClient
		deps.HealthSink = influxClient
	}

	if cfg.DetectionPatternsFile != "" {
		patterns, err := config.LoadPatterns(cfg.DetectionPatternsFile)
		if err != nil {
			logger.Fatal("Failed to load detection patterns", err, map[string]interface{}{
				"file": cfg.DetectionPatternsFile,
			})
		}
		deps.Patterns = security.PatternsFromConfig(patterns)
		logger.Info("Detection patterns loaded", map[string]interface{}{"count": len(patterns)})
	}

	svc := service.NewMonitoringService(deps)

	// Real-time stream of monitoring events
	hub := websocket.NewHub()
	hub.SetSnapshot(func() []websocket.Message {
		return []websocket.Message{{
			Type:      "alerts_snapshot",
			Timestamp: time.Now(),
			Data:      svc.Alerts.ActiveAlerts(),
		}}
	})
	hub.Attach(bus)
	go hub.Run()
	defer hub.Stop()

	limiter := middleware.NewRateLimiter(100*time.Millisecond, 20)
	limiter.OnDenied(func(key string) {
		svc.DetectSuspiciousActivity(key, "rate_limited", map[string]interface{}{"source": "rate_limiter"})
	})
	if err := svc.Scheduler.Register(scheduler.Task{
		Name:     "rate_limiter_cleanup",
		Interval: scheduler.CleanupInterval,
		Run: func(context.Context) {
			if removed := limiter.Cleanup(); removed > 0 {
				logger.Debug("Rate limiter visitors pruned", map[string]interface{}{"removed": removed})
			}
		},
	}); err != nil {
		logger.Fatal("Failed to register task", err, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	logger.Info("Monitoring scheduler started", nil)

	router := api.SetupRouter(svc, hub, limiter, cfg)
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...", nil)
		svc.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", err, nil)
		}
	}()

	logger.Info("Server starting", map[string]interface{}{
		"address":      addr,
		"api_endpoint": fmt.Sprintf("http://localhost%s/api", addr),
		"health_check": fmt.Sprintf("http://localhost%s/health", addr),
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to start server", err, nil)
	}
	logger.Info("Shutdown complete", nil)
}
