package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"screening-pipeline/internal/api/handlers"
	"screening-pipeline/internal/api/routes"
	"screening-pipeline/internal/config"
	"screening-pipeline/internal/evaluation"
	"screening-pipeline/internal/extraction"
	"screening-pipeline/internal/grpc/server"
	"screening-pipeline/internal/llm"
	"screening-pipeline/internal/logging"
	"screening-pipeline/internal/mux"
	"screening-pipeline/internal/pipeline"
	"screening-pipeline/internal/queue"
	"screening-pipeline/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger := logging.GetGlobalLogger()
	defer logging.CloseLogging()

	logger.Info("Starting screening pipeline", map[string]interface{}{
		"version":       handlers.Version,
		"queue_backend": cfg.Queue.Backend,
		"db_driver":     cfg.Database.Driver,
		"evaluation":    cfg.Evaluation.Mode,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		fatal(logger, "Failed to open persistence gateway", err)
	}
	defer store.Close()

	// Job queue
	taskStore, err := queue.Open(ctx, cfg)
	if err != nil {
		fatal(logger, "Failed to open task store", err)
	}
	adapter := queue.NewAdapter(taskStore, queue.OptionsFromConfig(cfg), queue.NewTaskEventLogger(logger), logger)
	defer adapter.Close()

	// Reasoning service
	llmManager := llm.NewManager(cfg, logger)
	if err := llmManager.Start(ctx); err != nil {
		fatal(logger, "Failed to start LLM manager", err)
	}
	go llmManager.MonitorHealth(ctx, time.Minute)
	completer := pipeline.NewRateLimitedCompleter(llmManager, cfg.Workers.RateLimit, cfg.Workers.RateBurst)

	// Extraction and evaluation clients
	fetcher := extraction.NewHTTPFetcher(cfg, nil)
	extractor := extraction.NewClient(cfg, fetcher, extraction.NewDocconvConverter(), completer, logger)
	evaluator, err := evaluation.New(cfg, completer, logger)
	if err != nil {
		fatal(logger, "Failed to create evaluator", err)
	}

	// Batch orchestrator
	orchestrator := pipeline.New(store, extractor, evaluator, pipeline.OptionsFromConfig(cfg), logger)
	orchestrator.SetNotifier(pipeline.NewLogNotifier(logger))

	worker := queue.NewWorker(adapter, orchestrator.TaskHandler(), queue.WorkerOptions{
		Concurrency: cfg.Workers.Count,
		TaskTimeout: cfg.Queue.TaskTimeout,
	}, logger)
	if err := worker.Start(context.Background()); err != nil {
		fatal(logger, "Failed to start pipeline worker", err)
	}

	// HTTP API
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	routes.SetupRoutes(e, cfg, routes.Dependencies{
		Queue: adapter,
		Store: store,
		Checks: map[string]handlers.Checker{
			"queue":    adapter.Ping,
			"database": store.Ping,
			"llm":      llmManager.Ready,
		},
		Logger: logger,
	})

	// gRPC health, served next to HTTP on the same port
	grpcServer := server.NewServer(logger)
	go grpcServer.WatchDependencies(ctx, map[string]server.Checker{
		"queue":    adapter.Ping,
		"database": store.Ping,
	}, 15*time.Second)

	multiplexer := mux.NewMultiplexer(cfg, grpcServer, e, logger)
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := multiplexer.Start(address); err != nil {
		fatal(logger, "Server failed to start", err)
	}

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop taking requests before draining in-flight batches
	logger.Info("Stopping HTTP and gRPC servers...")
	if err := multiplexer.Stop(shutdownCtx); err != nil && err != http.ErrServerClosed {
		logger.Error("Error shutting down servers", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Stopping pipeline worker...")
	if err := worker.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping pipeline worker", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Stopping LLM manager...")
	if err := llmManager.Stop(); err != nil {
		logger.Error("Error stopping LLM manager", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Server shutdown complete")
}

func fatal(logger logging.Logger, msg string, err error) {
	logger.Error(msg, map[string]interface{}{"error": err.Error()})
	logger.Close()
	os.Exit(1)
}
