package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	deploy_docker "github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/deploy/docker"
	http_handler "github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/handler/http"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/index/rag"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/notify/mqtt"
	redis_adapter "github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/pubsub/redis"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/repository/pg"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/storage/local"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/config"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/logger"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/ports"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/services"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize structured logger
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting Fleet Manager", "version", "0.1.0")

	// Initialize tracing
	var shutdownTracing func(context.Context) error
	if cfg.EnableTracing {
		shutdownTracing, err = tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			logger.Info("Tracing initialized", "endpoint", cfg.OTLPEndpoint)
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracing", "error", err)
				}
			}()
		}
	}

	// Initialize adapters
	repo, db, err := pg.NewRepository(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to init postgres", "error", err)
		log.Fatalf("failed to init postgres: %v", err)
	}

	bus, redisClient, err := redis_adapter.NewAdapter(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to init redis", "error", err)
		log.Fatalf("failed to init redis: %v", err)
	}
	dlq := redis_adapter.NewDeadLetter(redisClient)

	fileStore, err := local.NewStore(cfg.UploadDir)
	if err != nil {
		logger.Error("Failed to init file storage", "error", err, "dir", cfg.UploadDir)
		log.Fatalf("failed to init file storage: %v", err)
	}

	// RAG indexing is optional. Without a configured endpoint documents
	// are stored and versioned but not searchable.
	var indexer ports.Indexer
	var indexerPinger services.Pinger
	if cfg.RagServiceURL != "" {
		ragClient := rag.NewClient(cfg.RagServiceURL, cfg.RagAPIKey)
		indexer = ragClient
		indexerPinger = ragClient
		logger.Info("RAG indexing enabled", "url", cfg.RagServiceURL)
	} else {
		logger.Warn("RAG_URL not set, document indexing disabled")
	}

	// Deployment teardown is best-effort. Terminate and kill still work
	// without a reachable container runtime.
	var deployer ports.DeploymentClient
	dockerClient, err := deploy_docker.NewClient()
	if err != nil {
		logger.Warn("Docker unavailable, deployment teardown disabled", "error", err)
	} else {
		deployer = dockerClient
	}

	var notifier ports.Notifier
	mqttNotifier, err := mqtt.NewNotifier(cfg.MQTTBroker, dlq)
	if err != nil {
		logger.Warn("MQTT unavailable, owner notifications disabled", "error", err)
	} else {
		notifier = mqttNotifier
	}

	// Initialize domain services
	lifecycleService := services.NewLifecycleService(repo, deployer, notifier, bus)
	versionService := services.NewVersionService(repo, fileStore, indexer, cfg.IndexTimeout)
	healthService := services.NewHealthService(db, redisClient, indexerPinger, "0.1.0")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Fleet monitor sweeps heartbeat freshness in the background
	monitor := services.NewAgentMonitor(repo, bus, cfg.MonitorInterval)
	go monitor.Start(ctx)

	// WebSocket hub fans lifecycle events and alerts out to dashboards
	hub := http_handler.NewHub(bus)
	go hub.Run()
	go hub.EventConsumer(ctx)

	httpServer := http_handler.NewServer(lifecycleService, versionService, healthService, hub, dlq, cfg.AdminToken)

	// Start HTTP Server
	go func() {
		logger.Info("HTTP Server starting", "port", cfg.HTTPPort)
		if err := httpServer.Run(":" + cfg.HTTPPort); err != nil {
			logger.Error("HTTP server failed", "error", err)
			log.Fatalf("failed to serve http: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
}
