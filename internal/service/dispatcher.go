package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/observability"
)

// deliveryCreator is the slice of the ledger the dispatcher writes to.
type deliveryCreator interface {
	CreateDelivery(ctx context.Context, webhookID uuid.UUID, eventType string, payload json.RawMessage) (*models.WebhookDelivery, error)
}

// Dispatcher fans a domain event out to all active webhooks subscribed to its
// type, creating one pending delivery per webhook. Delivery itself happens
// asynchronously in the worker.
type Dispatcher struct {
	webhooks   WebhooksRepository
	deliveries deliveryCreator
	sem        chan struct{}
	metrics    observability.WebhookMetrics
}

// NewDispatcher creates a dispatcher. maxConcurrent bounds parallel ledger
// inserts during one fan-out (0 = 20). metrics may be nil.
func NewDispatcher(webhooks WebhooksRepository, deliveries deliveryCreator, maxConcurrent int, metrics observability.WebhookMetrics) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 20
	}

	return &Dispatcher{
		webhooks:   webhooks,
		deliveries: deliveries,
		sem:        make(chan struct{}, maxConcurrent),
		metrics:    metrics,
	}
}

// Dispatch creates one pending delivery per active matching webhook and
// returns the number created. A failure for one target is logged and counted
// but never blocks the others. An event with no subscribers is a no-op.
// The only returned error is a subscription lookup failure.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event) (int, error) {
	webhooks, err := d.webhooks.ListActiveForEventType(ctx, event.Type)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordDispatchError("list_failed")
		}

		slog.Error("failed to list active webhooks for event type",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)

		return 0, fmt.Errorf("list active webhooks: %w", err)
	}

	if len(webhooks) == 0 {
		return 0, nil
	}

	// The stored payload is the event's data alone; it becomes the POST body
	// verbatim. Event id and type travel in headers and the delivery record.
	payload := event.Data

	var failures atomic.Int64
	var wg sync.WaitGroup

	for i := range webhooks {
		webhook := webhooks[i]

		d.sem <- struct{}{} // acquire (blocks if at cap)
		wg.Add(1)
		go func() {
			defer func() { <-d.sem }() // release
			defer wg.Done()

			if _, err := d.deliveries.CreateDelivery(ctx, webhook.ID, event.Type, payload); err != nil {
				failures.Add(1)

				if d.metrics != nil {
					d.metrics.RecordDispatchError("create_failed")
				}

				slog.Error("failed to create delivery for webhook",
					"event_id", event.ID,
					"event_type", event.Type,
					"webhook_id", webhook.ID,
					"error", err,
				)
			}
		}()
	}

	wg.Wait()

	created := len(webhooks) - int(failures.Load())

	if d.metrics != nil && created > 0 {
		d.metrics.RecordDeliveriesCreated(event.Type, int64(created))
	}

	slog.Debug("event dispatched",
		"event_id", event.ID,
		"event_type", event.Type,
		"deliveries_created", created,
		"failures", failures.Load(),
	)

	return created, nil
}
