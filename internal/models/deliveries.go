package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the state of a single fan-out record.
// Lifecycle: pending -> success (terminal) or pending -> failed -> pending (retry).
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Validate checks if the status is one of the known values.
func (s DeliveryStatus) Validate() error {
	switch s {
	case DeliveryPending, DeliverySuccess, DeliveryFailed:
		return nil
	default:
		return fmt.Errorf("invalid delivery status: %s", s)
	}
}

// IsTerminal reports whether the status can never transition again.
// Only success is terminal; failed deliveries may be retried.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliverySuccess
}

// WebhookDelivery is one fan-out attempt record. Payload is an immutable
// snapshot of the event data taken when the delivery was created.
type WebhookDelivery struct {
	ID        uuid.UUID       `json:"id"`
	WebhookID uuid.UUID       `json:"webhook_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Status    DeliveryStatus  `json:"status"`
	Attempts  int             `json:"attempts"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DeliveryStats summarizes delivery outcomes for one webhook.
// SuccessRate is success/total as a percentage with two decimals ("0.00" when
// there are no deliveries).
type DeliveryStats struct {
	Total       int64  `json:"total"`
	Success     int64  `json:"success"`
	Failed      int64  `json:"failed"`
	Pending     int64  `json:"pending"`
	SuccessRate string `json:"success_rate"`
}

// ListDeliveriesFilters bounds a delivery listing (newest first). Status
// narrows the listing to one delivery state when set.
type ListDeliveriesFilters struct {
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=1000"`
	Status string `form:"status"`
}
