// Package worker provides the background loop that drains pending webhook
// deliveries from the ledger and reports their outcomes.
package worker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/hcmerrors"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/observability"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/service"
)

// DeliveryLedger is the slice of the deliveries service the worker drives.
type DeliveryLedger interface {
	ListPending(ctx context.Context, limit int) ([]models.WebhookDelivery, error)
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.WebhookDelivery, error)
	ReportOutcome(ctx context.Context, id uuid.UUID, success bool, errMsg string) error
	RetryDelivery(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
}

// webhookSource resolves delivery targets, secrets included.
type webhookSource interface {
	GetByIDInternal(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
}

// Config holds delivery worker tuning.
type Config struct {
	PollInterval   time.Duration // ledger poll period (0 = 3s)
	BatchSize      int           // max pending deliveries fetched per poll (0 = 100)
	MaxAttempts    int           // attempts before a delivery is left failed (0 = 5)
	MaxConcurrent  int           // parallel webhook groups (0 = 20)
	InitialBackoff time.Duration // backoff after the first failure (0 = 5s)
	MaxBackoff     time.Duration // backoff cap
	RateLimit      float64       // outbound requests per second across all targets (0 = unlimited)
}

const backoffMultiplier = 2

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 20
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 5 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
}

// DeliveryWorker polls the ledger for pending deliveries and sends them.
// Deliveries are grouped per webhook: groups run in parallel under a
// concurrency cap, deliveries within a group run oldest first, and a group
// stops at its first failure so a flapping endpoint receives events in order.
type DeliveryWorker struct {
	ledger   DeliveryLedger
	webhooks webhookSource
	sender   service.WebhookSender
	cfg      Config
	limiter  *rate.Limiter
	metrics  observability.WebhookMetrics

	retryWG sync.WaitGroup
}

// NewDeliveryWorker creates a delivery worker. metrics may be nil.
func NewDeliveryWorker(
	ledger DeliveryLedger, webhooks webhookSource, sender service.WebhookSender,
	cfg Config, metrics observability.WebhookMetrics,
) *DeliveryWorker {
	cfg.applyDefaults()

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &DeliveryWorker{
		ledger:   ledger,
		webhooks: webhooks,
		sender:   sender,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  metrics,
	}
}

// Run polls until ctx is cancelled, then waits for scheduled retries to wind
// down before returning.
func (w *DeliveryWorker) Run(ctx context.Context) {
	slog.Info("delivery worker started",
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"max_attempts", w.cfg.MaxAttempts,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.DrainOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.retryWG.Wait()
			slog.Info("delivery worker stopped")

			return
		case <-ticker.C:
			w.DrainOnce(ctx)
		}
	}
}

// DrainOnce re-queues failed deliveries whose backoff has elapsed, then
// fetches one batch of pending deliveries and processes it to completion.
// Exported so a tick can be driven directly in tests and scripts.
func (w *DeliveryWorker) DrainOnce(ctx context.Context) {
	w.requeueDueRetries(ctx)

	deliveries, err := w.ledger.ListPending(ctx, w.cfg.BatchSize)
	if err != nil {
		slog.Error("failed to list pending deliveries", "error", err)

		return
	}

	if len(deliveries) == 0 {
		return
	}

	// Group per webhook, preserving the ledger's FIFO order within each group.
	groups := make(map[uuid.UUID][]models.WebhookDelivery)
	var order []uuid.UUID
	for _, d := range deliveries {
		if _, seen := groups[d.WebhookID]; !seen {
			order = append(order, d.WebhookID)
		}
		groups[d.WebhookID] = append(groups[d.WebhookID], d)
	}

	sem := make(chan struct{}, w.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, webhookID := range order {
		group := groups[webhookID]

		sem <- struct{}{}
		wg.Add(1)
		go func(webhookID uuid.UUID, group []models.WebhookDelivery) {
			defer func() { <-sem }()
			defer wg.Done()

			w.processGroup(ctx, webhookID, group)
		}(webhookID, group)
	}

	wg.Wait()
}

// processGroup delivers one webhook's pending stream in order, stopping at the
// first failure. Inactive or deleted webhooks are skipped; their deliveries
// stay pending and are reconsidered on later polls.
func (w *DeliveryWorker) processGroup(ctx context.Context, webhookID uuid.UUID, group []models.WebhookDelivery) {
	webhook, err := w.webhooks.GetByIDInternal(ctx, webhookID)
	if err != nil {
		if errors.Is(err, hcmerrors.ErrNotFound) {
			slog.Debug("skipping deliveries for deleted webhook", "webhook_id", webhookID)
		} else {
			slog.Error("failed to load webhook for delivery", "webhook_id", webhookID, "error", err)
		}

		return
	}

	if !webhook.IsActive {
		slog.Debug("skipping deliveries for inactive webhook", "webhook_id", webhookID)

		return
	}

	for i := range group {
		if ctx.Err() != nil {
			return
		}

		if !w.deliver(ctx, webhook, &group[i]) {
			return
		}
	}
}

// deliver sends one delivery and reports its outcome. Returns false when the
// send failed, so the caller stops the group.
func (w *DeliveryWorker) deliver(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery) bool {
	if err := w.limiter.Wait(ctx); err != nil {
		return false
	}

	start := time.Now()
	sendErr := w.sender.Send(ctx, webhook, delivery)
	duration := time.Since(start)

	if sendErr == nil {
		if err := w.ledger.ReportOutcome(ctx, delivery.ID, true, ""); err != nil {
			slog.Error("failed to record delivery success",
				"delivery_id", delivery.ID,
				"webhook_id", webhook.ID,
				"error", err,
			)
		}

		if w.metrics != nil {
			w.metrics.RecordDeliveryOutcome(delivery.EventType, "success")
			w.metrics.RecordDeliveryDuration(duration, delivery.EventType, "success")
		}

		slog.Debug("webhook delivered",
			"delivery_id", delivery.ID,
			"webhook_id", webhook.ID,
			"event_type", delivery.EventType,
			"duration_ms", duration.Milliseconds(),
		)

		return true
	}

	if err := w.ledger.ReportOutcome(ctx, delivery.ID, false, sendErr.Error()); err != nil {
		slog.Error("failed to record delivery failure",
			"delivery_id", delivery.ID,
			"webhook_id", webhook.ID,
			"error", err,
		)

		return false
	}

	if w.metrics != nil {
		w.metrics.RecordDeliveryOutcome(delivery.EventType, "failed")
		w.metrics.RecordDeliveryDuration(duration, delivery.EventType, "failed")
	}

	// ReportOutcome incremented the attempt count.
	attempts := delivery.Attempts + 1

	slog.Warn("webhook delivery failed",
		"delivery_id", delivery.ID,
		"webhook_id", webhook.ID,
		"event_type", delivery.EventType,
		"attempts", attempts,
		"max_attempts", w.cfg.MaxAttempts,
		"error", sendErr,
	)

	if attempts < w.cfg.MaxAttempts {
		w.scheduleRetry(ctx, delivery.ID, attempts)
	}

	return false
}

// requeueDueRetries recovers failed deliveries with remaining attempt budget
// whose backoff has elapsed since the failure was recorded. In-process timers
// handle the common case; this sweep picks up schedules lost to a restart.
// The timer fires at 50-100% of the backoff while the sweep waits for the
// full backoff, so a live timer almost always wins. If both run,
// RetryDelivery on an already-pending delivery is a harmless no-op.
func (w *DeliveryWorker) requeueDueRetries(ctx context.Context) {
	deliveries, err := w.ledger.ListRetryable(ctx, w.cfg.MaxAttempts, w.cfg.BatchSize)
	if err != nil {
		slog.Error("failed to list retryable deliveries", "error", err)

		return
	}

	for _, d := range deliveries {
		if time.Since(d.UpdatedAt) < w.backoffFor(d.Attempts) {
			continue
		}

		if _, err := w.ledger.RetryDelivery(ctx, d.ID); err != nil {
			if !errors.Is(err, hcmerrors.ErrIllegalTransition) {
				slog.Error("failed to re-queue overdue delivery",
					"delivery_id", d.ID,
					"error", err,
				)
			}

			continue
		}

		slog.Debug("overdue delivery re-queued",
			"delivery_id", d.ID,
			"attempts", d.Attempts,
		)
	}
}

// scheduleRetry re-queues a failed delivery after an exponential backoff with
// jitter. The delivery stays failed until the timer fires, so operators see
// the real state in the meantime and can force an immediate retry by hand.
func (w *DeliveryWorker) scheduleRetry(ctx context.Context, deliveryID uuid.UUID, attempts int) {
	backoff := jitter(w.backoffFor(attempts))

	w.retryWG.Add(1)
	go func() {
		defer w.retryWG.Done()

		if err := sleep(ctx, backoff); err != nil {
			return
		}

		if _, err := w.ledger.RetryDelivery(ctx, deliveryID); err != nil {
			// An illegal transition here means an operator already resolved
			// the delivery; nothing to do.
			if !errors.Is(err, hcmerrors.ErrIllegalTransition) {
				slog.Error("failed to re-queue delivery for retry",
					"delivery_id", deliveryID,
					"error", err,
				)
			}

			return
		}

		slog.Debug("delivery re-queued after backoff",
			"delivery_id", deliveryID,
			"attempts", attempts,
			"backoff", backoff,
		)
	}()
}

// backoffFor returns the base backoff before retry number attempts+1:
// initial * 2^(attempts-1), capped. Callers jitter it where appropriate.
func (w *DeliveryWorker) backoffFor(attempts int) time.Duration {
	backoff := w.cfg.InitialBackoff
	for i := 1; i < attempts; i++ {
		backoff *= backoffMultiplier
		if backoff >= w.cfg.MaxBackoff {
			backoff = w.cfg.MaxBackoff
			break
		}
	}

	return backoff
}

// jitter returns a duration between 50% and 100% of duration to avoid thundering herd.
func jitter(duration time.Duration) time.Duration {
	const jitterHalf = 2

	half := duration / jitterHalf
	if half <= 0 {
		return duration
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return half
	}

	randVal := binary.BigEndian.Uint64(buf[:])
	halfNanos := half.Nanoseconds()
	if halfNanos <= 0 {
		return half
	}

	// randVal % halfNanos is in [0, halfNanos); duration nanos fit in int64
	//nolint:gosec // G115: modulo result is in [0, halfNanos), safe to convert to int64
	jitterNanos := int64(randVal % uint64(halfNanos))

	return half + time.Duration(jitterNanos)
}

// sleep blocks for the given duration or until ctx is cancelled; returns ctx.Err() if cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
