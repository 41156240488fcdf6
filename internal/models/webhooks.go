package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Webhook is the full subscription record, secret included. It never crosses
// the read boundary: handlers and list/get APIs work with WebhookResponse,
// and only the delivery pipeline (which signs payloads) sees this type.
type Webhook struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"secret"`
	CreatedBy string    `json:"created_by"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookResponse is the sanitized read model: identical to Webhook minus the secret.
type WebhookResponse struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	CreatedBy string    `json:"created_by"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Response projects the webhook onto the read model (secret redacted).
func (w *Webhook) Response() WebhookResponse {
	return WebhookResponse{
		ID:        w.ID,
		URL:       w.URL,
		Events:    w.Events,
		CreatedBy: w.CreatedBy,
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// CreateWebhookRequest represents the request to register a webhook.
type CreateWebhookRequest struct {
	URL       string   `json:"url" validate:"required,no_null_bytes,min=1,max=2048"`
	Events    []string `json:"events" validate:"required,min=1,dive,event_type"`
	Secret    string   `json:"secret,omitempty"` // Optional - auto-generated if not provided
	CreatedBy string   `json:"created_by" validate:"required,no_null_bytes,max=255"`
	IsActive  *bool    `json:"is_active,omitempty"`
}

// UpdateWebhookRequest represents a partial update; nil fields are unchanged.
type UpdateWebhookRequest struct {
	URL      *string   `json:"url,omitempty" validate:"omitempty,no_null_bytes,min=1,max=2048"`
	Events   *[]string `json:"events,omitempty" validate:"omitempty,min=1,dive,event_type"`
	IsActive *bool     `json:"is_active,omitempty"`
}

// ValidateEventTypes checks well-formedness and uniqueness of a subscription set.
// An empty set is rejected: a webhook subscribed to nothing is meaningless.
func ValidateEventTypes(events []string) error {
	if len(events) == 0 {
		return fmt.Errorf("events must not be empty")
	}

	seen := make(map[string]bool, len(events))
	for _, s := range events {
		if !IsValidEventType(s) {
			return fmt.Errorf("invalid event type: %s", s)
		}
		if seen[s] {
			return fmt.Errorf("duplicate event type: %s", s)
		}
		seen[s] = true
	}

	return nil
}

// ListWebhooksFilters represents filters for listing webhooks.
type ListWebhooksFilters struct {
	CreatedBy *string `form:"created_by" validate:"omitempty,no_null_bytes,max=255"`
	IsActive  *bool   `form:"is_active"`
	Limit     int     `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset    int     `form:"offset" validate:"omitempty,min=0"`
}

// ListWebhooksResponse represents the response for listing webhooks.
type ListWebhooksResponse struct {
	Data   []WebhookResponse `json:"data"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// WebhookDetail is a webhook plus its most recent deliveries (bounded join
// for the admin UI, not a general query facility).
type WebhookDetail struct {
	WebhookResponse

	RecentDeliveries []WebhookDelivery `json:"recent_deliveries"`
}
