/**
 * Crowd Dashboard API - Main Entry Point
 *
 * Serves the CSV time series and its weekly, hourly and overall statistics
 * as JSON for the dashboard frontend. Run history is listed when REDIS_URL
 * points at the worker's Redis.
 */

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/iori73/crowd-data-dashboard-v2/internal/analytics"
	"github.com/iori73/crowd-data-dashboard-v2/internal/config"
	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/queue"
	"github.com/iori73/crowd-data-dashboard-v2/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.NewLogger("Dashboard")
	loader := analytics.NewLoader(cfg.CSVPath, cfg.CacheTTL, logging.NewLogger("Loader"))

	var runs server.RunLister
	if cfg.RedisURL != "" {
		pub, err := queue.NewEventPublisher(&queue.PublisherConfig{RedisURL: cfg.RedisURL}, logging.NewLogger("Events"))
		if err != nil {
			logger.Warn("Redis unavailable, run history disabled", "error", err)
		} else {
			defer pub.Close()
			runs = pub
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.DashboardPort,
		Handler:           server.New(loader, runs, logging.NewLogger("API")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Dashboard API listening", "addr", srv.Addr, "csv", cfg.CSVPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Shutdown complete")
}
