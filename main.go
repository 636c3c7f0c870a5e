package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/FinanGammell/pare/config"
	"github.com/FinanGammell/pare/internal/bootstrap"
	"github.com/FinanGammell/pare/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "pare",
		Pretty:  cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	switch *mode {
	case "api", "worker", "all":
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	var worker *bootstrap.Worker
	if *mode == "worker" || *mode == "all" {
		worker, err = bootstrap.NewWorker(deps)
		if err != nil {
			logger.Fatal("Failed to initialize worker: %v", err)
		}
		if worker != nil {
			worker.Start()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *mode == "worker" {
		<-sigChan
		shutdown(deps, worker, nil)
		return
	}

	app := bootstrap.NewAPI(deps)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigChan
		shutdown(deps, worker, app.ShutdownWithContext)
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s (mode=%s)", addr, *mode)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
	// Listen returns as soon as HTTP stops; wait for running jobs before cleanup
	<-stopped
}

// shutdown stops intake first (scheduler, HTTP), then waits for running sync
// jobs, all within shutdownTimeout.
func shutdown(deps *bootstrap.Dependencies, worker *bootstrap.Worker, stopHTTP func(context.Context) error) {
	logger.Info("Shutting down (timeout: %v)...", shutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if worker != nil {
		worker.Stop(ctx)
	}
	if stopHTTP != nil {
		if err := stopHTTP(ctx); err != nil {
			logger.Error("Error shutting down HTTP server: %v", err)
		}
	}
	if err := deps.Shutdown(ctx); err != nil {
		logger.Warn("Sync jobs did not finish before shutdown deadline: %v", err)
		return
	}
	logger.Info("Shut down gracefully")
}
