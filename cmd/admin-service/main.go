package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-storefront/internal/app"
	"auction-storefront/internal/config"
	"auction-storefront/internal/infrastructure/leader"
	"auction-storefront/pkg/logger"
)

func main() {
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log = logger.NewWithLevel(cfg.Log.Level)
	log.Info("Configuration loaded", "config", cfg.GetConfigString())
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("The memory driver is not shared with the bidding service; run the bidding service alone instead")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := app.New(initCtx, cfg, app.Options{Name: "admin-service", Migrate: true}, log)
	initCancel()
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Start background services
	scheduler := a.Scheduler()
	if err := scheduler.Start(ctx); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Only the leader sweeps; the others keep campaigning.
	go leader.Campaign(ctx, a.Election, cfg.Instance.ID, cfg.Leader.TTL/3, log)

	e := a.AdminServer()
	go func() {
		log.Info("Starting admin service", "address", cfg.AdminServer.Address())
		if err := e.Start(cfg.AdminServer.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down admin service...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	cancel()
	if err := a.Election.ReleaseLeadership(shutdownCtx, cfg.Instance.ID); err != nil {
		log.Error("Failed to release leadership", "error", err)
	}

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Admin service stopped")
}
