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
	"auction-storefront/internal/infrastructure/websocket"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"

	"github.com/labstack/echo/v4"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := app.New(initCtx, cfg, app.Options{Name: "bidding-service"}, log)
	initCancel()
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Fan committed changes out to this instance's websocket clients
	connManager := websocket.NewConnectionManager(a.Metrics, log)
	eventListener := services.NewEventListener(connManager, log)
	go func() {
		if err := eventListener.Start(ctx, a.Subscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener stopped", "error", err)
		}
	}()

	// Start HTTP server
	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           a.BiddingRouter(connManager),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting bidding service", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// A memory store lives in this process only, so the operator side runs here too.
	var (
		admin     *echo.Echo
		scheduler *services.CronAuctionScheduler
	)
	if cfg.Storage.Driver == config.DriverMemory {
		scheduler = a.Scheduler()
		if err := scheduler.Start(ctx); err != nil {
			log.Error("Failed to start scheduler", "error", err)
			os.Exit(1)
		}

		admin = a.AdminServer()
		go func() {
			log.Info("Starting in-process admin API", "address", cfg.AdminServer.Address())
			if err := admin.Start(cfg.AdminServer.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Admin server failed to start", "error", err)
				os.Exit(1)
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bidding service...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			log.Error("Failed to stop scheduler", "error", err)
		}
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			log.Error("Admin server forced to shutdown", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	cancel()

	log.Info("Bidding service stopped")
}
