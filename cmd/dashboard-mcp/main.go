// Package main runs the dashboard MCP server on stdio. Logs go to stderr so
// they never interleave with protocol messages.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trial-progress-dashboard/internal/app"
	"github.com/trial-progress-dashboard/internal/config"
	"github.com/trial-progress-dashboard/internal/mcp"
)

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	configManager, err := config.NewManagerFromFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, err := config.NewLogger(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	deps, err := app.New(ctx, configManager, logger, app.Options{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize dashboard")
	}
	defer deps.Close()

	if cfg.Refresh.OnStartup {
		if _, err := deps.Dashboard.Refresh(ctx); err != nil {
			logger.WithError(err).Warn("Initial refresh failed; use the refresh_dashboard tool to retry")
		}
	}

	server := mcp.NewServer(cfg.MCP, deps.Dashboard, logger)
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("Dashboard MCP server stopped")
}
