package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"promptforge/internal/adapters/archive/pg"
	"promptforge/internal/adapters/backend/sdapi"
	"promptforge/internal/adapters/configstore"
	memory_bus "promptforge/internal/adapters/events/memory"
	redis_bus "promptforge/internal/adapters/events/redis"
	http_handler "promptforge/internal/adapters/handler/http"
	"promptforge/internal/adapters/handler/mqtt"
	"promptforge/internal/config"
	"promptforge/internal/core/logger"
	"promptforge/internal/core/ports"
	"promptforge/internal/core/services"
	"promptforge/internal/core/tracing"
	"promptforge/internal/queue"
	"promptforge/internal/scheduler"
	"promptforge/internal/wildcard"
)

// redisPinger adapts the redis client to the health service.
type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting PromptForge", "version", "0.1.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	var shutdownTracing func(context.Context) error
	if cfg.EnableTracing {
		shutdownTracing, err = tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			logger.Info("Tracing initialized", "endpoint", cfg.OTLPEndpoint)
		}
	}

	// Templates and wildcard sets
	configs, err := configstore.NewStore(cfg.TemplateDir, cfg.MaxRetries)
	if err != nil {
		logger.Error("Failed to load template configs", "error", err)
		log.Fatalf("failed to load template configs: %v", err)
	}
	wildcards := wildcard.NewStore(cfg.WildcardDir)

	// Queue and generation backend
	q := queue.New()
	backend := sdapi.NewClient(cfg.BackendURL, cfg.BackendPollInterval)

	// Event bus: Redis when configured, otherwise in-process
	var bus ports.EventBus
	healthService := services.NewHealthService(backend)
	if cfg.RedisURL != "" {
		redisBus, redisClient, err := redis_bus.NewBus(cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to init redis", "error", err)
			log.Fatalf("failed to init redis: %v", err)
		}
		bus = redisBus
		healthService.Register("redis", redisPinger{redisClient})
		logger.Info("Using Redis event bus")
	} else {
		bus = memory_bus.New()
		logger.Info("Using in-process event bus")
	}

	// Optional job history archive
	var archive ports.JobArchive
	if cfg.DatabaseURL != "" {
		pgArchive, err := pg.NewArchive(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to init postgres", "error", err)
			log.Fatalf("failed to init postgres: %v", err)
		}
		archive = pgArchive
		healthService.Register("database", pgArchive)
		logger.Info("Job history archive enabled")
	}

	// Services
	generationService := services.NewGenerationService(configs, wildcards, q)
	monitor := services.NewBackendMonitor(backend, 30*time.Second)
	go monitor.Run(ctx)

	// Scheduler worker loop
	sched := scheduler.New(q, backend, bus, archive, cfg.PollInterval)
	go sched.Run(ctx)

	// Websocket hub and metrics consumers
	hub := http_handler.NewHub(bus)
	go hub.Run()
	go hub.EventConsumer(ctx)
	go http_handler.MetricsConsumer(ctx, bus)

	// Optional MQTT bridge
	if cfg.MQTTBroker != "" {
		mqttPublisher, err := mqtt.NewPublisher(bus, cfg.MQTTBroker)
		if err != nil {
			logger.Error("Failed to init MQTT publisher", "error", err)
		} else {
			mqttPublisher.Start(ctx)
			defer mqttPublisher.Close()
			logger.Info("MQTT Publisher started")
		}
	}

	httpServer := http_handler.NewServer(generationService, healthService, hub, archive)

	go func() {
		logger.Info("HTTP Server starting", "port", cfg.HTTPPort)
		if err := httpServer.Run(":" + cfg.HTTPPort); err != nil {
			logger.Error("HTTP server failed", "error", err)
			log.Fatalf("failed to serve http: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	cancel()
	if shutdownTracing != nil {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("Failed to shutdown tracing", "error", err)
		}
	}
}
