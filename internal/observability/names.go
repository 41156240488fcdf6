// Package observability provides OpenTelemetry metrics and slog integration
// for the webhook subsystem.
package observability

import (
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
)

// Metric names (OpenTelemetry / OTLP).
const (
	MetricNameDeliveriesCreated = "hcm_webhook_deliveries_created_total"
	MetricNameDispatchErrors    = "hcm_webhook_dispatch_errors_total"
	MetricNameDeliveryOutcomes  = "hcm_webhook_delivery_outcomes_total"
	MetricNameDeliveryDuration  = "hcm_webhook_delivery_duration_seconds"
	MetricNamePendingDepth      = "hcm_webhook_pending_deliveries"
)

// Attribute keys.
const (
	AttrEventType = "event_type"
	AttrReason    = "reason"
	AttrStatus    = "status"
)

// AllowedDispatchReasons for hcm_webhook_dispatch_errors_total.
var AllowedDispatchReasons = map[string]bool{
	"list_failed":   true,
	"create_failed": true,
}

// AllowedDeliveryStatuses for hcm_webhook_delivery_outcomes_total and
// hcm_webhook_delivery_duration_seconds.
var AllowedDeliveryStatuses = map[string]bool{
	"success": true,
	"failed":  true,
}

var knownEventTypes = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range models.KnownEventTypes() {
		m[t] = true
	}
	return m
}()

// NormalizeEventType returns eventType if it is one of the known domain event
// types, otherwise "other". Subscriptions are free-text, so this bounds
// metric attribute cardinality.
func NormalizeEventType(eventType string) string {
	if knownEventTypes[eventType] {
		return eventType
	}

	return "other"
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeStatus returns status if in AllowedDeliveryStatuses, otherwise "other".
func NormalizeStatus(status string) string {
	if AllowedDeliveryStatuses[status] {
		return status
	}

	return "other"
}
