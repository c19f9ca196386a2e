package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trial-progress-dashboard/internal/api"
	"github.com/trial-progress-dashboard/internal/app"
	"github.com/trial-progress-dashboard/internal/config"
)

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	// Load configuration
	configManager, err := config.NewManagerFromFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	deps, err := app.New(ctx, configManager, logger, app.Options{Probe: true})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize dashboard")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release resources")
		}
	}()

	go deps.Dashboard.Start(ctx, cfg.Refresh.Interval, cfg.Refresh.OnStartup)

	server := api.NewServer(configManager, deps.Dashboard, logger)
	if deps.DB != nil {
		server.SetDatabase(deps.DB)
	}

	logger.WithField("environment", cfg.Environment).Info("Starting trial progress dashboard")

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
