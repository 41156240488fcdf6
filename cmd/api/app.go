package main

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/api/handlers"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/config"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/observability"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/repository"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/service"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/worker"
	"github.com/OfekItzhaki/horizon-hcm-sub003/pkg/cache"
)

// app holds the wired application components.
type app struct {
	webhooksHandler   *handlers.WebhooksHandler
	deliveriesHandler *handlers.DeliveriesHandler
	eventsHandler     *handlers.EventsHandler
	healthHandler     *handlers.HealthHandler
	deliveryWorker    *worker.DeliveryWorker
	meterProvider     *sdkmetric.MeterProvider
}

// newApp wires repositories, services, the dispatcher, the delivery worker,
// and handlers.
func newApp(cfg *config.Config, db *pgxpool.Pool) (*app, error) {
	webhooksRepo := repository.NewWebhooksRepository(db)
	deliveriesRepo := repository.NewDeliveriesRepository(db)

	// Metrics (optional)
	meterProvider, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("create meter provider: %w", err)
	}

	var metrics observability.WebhookMetrics
	if meterProvider != nil {
		meter := meterProvider.Meter("hcm-webhooks")

		metrics, err = observability.NewWebhookMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("create webhook metrics: %w", err)
		}

		if err := observability.RegisterPendingDepthGauge(meter, deliveriesRepo.CountPending); err != nil {
			return nil, fmt.Errorf("register pending depth gauge: %w", err)
		}

		slog.Info("Metrics enabled", "exporter", cfg.OtelMetricsExporter)
	}

	// The dispatch path reads subscriptions on every event; cache that lookup.
	var webhooksStore service.WebhooksRepository = webhooksRepo
	if cfg.CacheEnabled {
		listCache := cache.NewLoaderCache[[]models.Webhook](cfg.CacheSize, cfg.CacheTTL)
		webhooksStore = service.NewCachingWebhooksRepository(webhooksRepo, listCache)
		slog.Info("Subscription cache enabled", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
	}

	deliveriesService := service.NewDeliveriesService(deliveriesRepo)
	webhooksService := service.NewWebhooksService(webhooksStore, deliveriesRepo, cfg.AllowPrivateURLs)
	dispatcher := service.NewDispatcher(webhooksStore, deliveriesService, cfg.DeliveryMaxConcurrent, metrics)
	sender := service.NewHTTPWebhookSender(cfg.DeliveryTimeout, cfg.DeliveryTransportRetries)

	deliveryWorker := worker.NewDeliveryWorker(deliveriesService, webhooksStore, sender, worker.Config{
		PollInterval:   cfg.WorkerPollInterval,
		BatchSize:      cfg.WorkerBatchSize,
		MaxAttempts:    cfg.DeliveryMaxAttempts,
		MaxConcurrent:  cfg.DeliveryMaxConcurrent,
		InitialBackoff: cfg.DeliveryInitialBackoff,
		MaxBackoff:     cfg.DeliveryMaxBackoff,
		RateLimit:      cfg.DeliveryRateLimit,
	}, metrics)

	return &app{
		webhooksHandler:   handlers.NewWebhooksHandler(webhooksService, deliveriesService),
		deliveriesHandler: handlers.NewDeliveriesHandler(deliveriesService),
		eventsHandler:     handlers.NewEventsHandler(dispatcher),
		healthHandler:     handlers.NewHealthHandler(db),
		deliveryWorker:    deliveryWorker,
		meterProvider:     meterProvider,
	}, nil
}
