package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/api/middleware"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/config"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/observability"
	"github.com/OfekItzhaki/horizon-hcm-sub003/pkg/database"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Configure slog with the log level from config
	setupLogging(cfg.LogLevel)

	// Initialize database connection
	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	app, err := newApp(cfg, db)
	if err != nil {
		slog.Error("Failed to build application", "error", err)
		os.Exit(1)
	}

	// Set up public endpoints (no authentication required)
	publicMux := http.NewServeMux()
	publicMux.HandleFunc("GET /health", app.healthHandler.Check)

	// Set up protected endpoints (authentication required)
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /v1/webhooks", app.webhooksHandler.Create)
	protectedMux.HandleFunc("GET /v1/webhooks", app.webhooksHandler.List)
	protectedMux.HandleFunc("GET /v1/webhooks/{id}", app.webhooksHandler.Get)
	protectedMux.HandleFunc("PATCH /v1/webhooks/{id}", app.webhooksHandler.Update)
	protectedMux.HandleFunc("DELETE /v1/webhooks/{id}", app.webhooksHandler.Delete)
	protectedMux.HandleFunc("GET /v1/webhooks/{id}/deliveries", app.webhooksHandler.ListDeliveries)
	protectedMux.HandleFunc("GET /v1/webhooks/{id}/stats", app.webhooksHandler.Stats)

	protectedMux.HandleFunc("GET /v1/deliveries/{id}", app.deliveriesHandler.Get)
	protectedMux.HandleFunc("POST /v1/deliveries/{id}/retry", app.deliveriesHandler.Retry)

	protectedMux.HandleFunc("POST /v1/events", app.eventsHandler.Trigger)

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	// Combine both handlers
	mainMux := http.NewServeMux()
	mainMux.Handle("/v1/", protectedHandler)
	mainMux.Handle("/", publicMux) // Catch-all for public routes (/health, etc.)

	// Outer chain: RequestID first so logging and handlers see it.
	handler := middleware.MaxBody(maxRequestBodyBytes)(mainMux)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Start the delivery worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		go func() {
			defer close(workerDone)
			app.deliveryWorker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
		slog.Info("Delivery worker disabled (WEBHOOK_WORKER_ENABLED=false)")
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Stop accepting new HTTP requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// 2. Stop the delivery worker (waits for scheduled retries)
	workerCancel()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		slog.Warn("Delivery worker did not stop in time")
	}

	// 3. Flush metrics
	if err := observability.ShutdownMeterProvider(shutdownCtx, app.meterProvider); err != nil {
		slog.Error("Failed to shut down meter provider", "error", err)
	}

	slog.Info("Server exited")
}

// setupLogging configures slog with the specified log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	inner := slog.NewTextHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(observability.NewRequestIDHandler(inner)))
}
