package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WebhookMetrics records webhook pipeline metrics (dispatcher, worker, sender).
type WebhookMetrics interface {
	RecordDeliveriesCreated(eventType string, count int64)
	RecordDispatchError(reason string)
	RecordDeliveryOutcome(eventType, status string)
	RecordDeliveryDuration(duration time.Duration, eventType, status string)
}

// webhookMetrics implements WebhookMetrics.
type webhookMetrics struct {
	deliveriesCreated metric.Int64Counter
	dispatchErrors    metric.Int64Counter
	outcomes          metric.Int64Counter
	deliveryDuration  metric.Float64Histogram
}

// NewWebhookMetrics creates WebhookMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewWebhookMetrics(meter metric.Meter) (WebhookMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	deliveriesCreated, err := meter.Int64Counter(
		MetricNameDeliveriesCreated,
		metric.WithDescription("Total delivery records created by event fan-out"),
	)
	if err != nil {
		return nil, fmt.Errorf("create deliveries created counter: %w", err)
	}

	dispatchErrors, err := meter.Int64Counter(
		MetricNameDispatchErrors,
		metric.WithDescription("Total dispatch errors (subscription lookup or record creation failures)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dispatch errors counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		MetricNameDeliveryOutcomes,
		metric.WithDescription("Total delivery outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create delivery outcomes counter: %w", err)
	}

	deliveryDuration, err := meter.Float64Histogram(
		MetricNameDeliveryDuration,
		metric.WithDescription("Webhook delivery duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create delivery duration histogram: %w", err)
	}

	return &webhookMetrics{
		deliveriesCreated: deliveriesCreated,
		dispatchErrors:    dispatchErrors,
		outcomes:          outcomes,
		deliveryDuration:  deliveryDuration,
	}, nil
}

func (wm *webhookMetrics) RecordDeliveriesCreated(eventType string, count int64) {
	eventType = NormalizeEventType(eventType)
	wm.deliveriesCreated.Add(context.Background(), count, metric.WithAttributes(attrEventType(eventType)))
}

func (wm *webhookMetrics) RecordDispatchError(reason string) {
	reason = NormalizeReason(reason, AllowedDispatchReasons)
	wm.dispatchErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (wm *webhookMetrics) RecordDeliveryOutcome(eventType, status string) {
	eventType = NormalizeEventType(eventType)
	status = NormalizeStatus(status)
	wm.outcomes.Add(context.Background(), 1,
		metric.WithAttributes(attrEventType(eventType), attribute.String(AttrStatus, status)))
}

func (wm *webhookMetrics) RecordDeliveryDuration(duration time.Duration, eventType, status string) {
	eventType = NormalizeEventType(eventType)
	status = NormalizeStatus(status)
	wm.deliveryDuration.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(attrEventType(eventType), attribute.String(AttrStatus, status)))
}

func attrEventType(eventType string) attribute.KeyValue {
	return attribute.String(AttrEventType, eventType)
}

// RegisterPendingDepthGauge registers an observable gauge that reports the
// number of pending deliveries. count is called on each metric collection.
func RegisterPendingDepthGauge(meter metric.Meter, count func(context.Context) (int64, error)) error {
	if meter == nil {
		return nil
	}

	gauge, err := meter.Int64ObservableGauge(
		MetricNamePendingDepth,
		metric.WithDescription("Current number of pending deliveries"),
	)
	if err != nil {
		return fmt.Errorf("create pending depth gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := count(ctx)
		if err != nil {
			return fmt.Errorf("count pending deliveries: %w", err)
		}
		o.ObserveInt64(gauge, n)
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("register pending depth callback: %w", err)
	}

	return nil
}
