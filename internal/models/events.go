package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Domain event types emitted by the housing community platform.
const (
	EventPollCreated        = "poll.created"
	EventPollClosed         = "poll.closed"
	EventInvoiceIssued      = "invoice.issued"
	EventInvoicePaid        = "invoice.paid"
	EventMaintenanceCreated = "maintenance.created"
	EventMaintenanceUpdated = "maintenance.updated"
	EventAnnouncementPosted = "announcement.posted"
)

// eventTypePattern matches dot-separated segments of word characters,
// e.g. "poll.created" or "custom_integration.sync".
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

const maxEventTypeLen = 64

// KnownEventTypes returns the event types the platform itself emits.
// Subscriptions are not restricted to this list; integrations may publish
// their own types through the trigger endpoint.
func KnownEventTypes() []string {
	return []string{
		EventPollCreated,
		EventPollClosed,
		EventInvoiceIssued,
		EventInvoicePaid,
		EventMaintenanceCreated,
		EventMaintenanceUpdated,
		EventAnnouncementPosted,
	}
}

// IsValidEventType reports whether s is a well-formed event type.
func IsValidEventType(s string) bool {
	if s == "" || len(s) > maxEventTypeLen {
		return false
	}

	return eventTypePattern.MatchString(s)
}

// Event is a domain event to fan out to subscribed webhooks.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates an event with a v7 (time-ordered) UUID and a UTC timestamp.
func NewEvent(eventType string, data json.RawMessage) (*Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	return &Event{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// TriggerEventRequest is the API request to publish an event.
type TriggerEventRequest struct {
	Type      string          `json:"type" validate:"required,event_type"`
	Data      json.RawMessage `json:"data" validate:"required"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// ToEvent converts the request into an Event, generating ID and defaulting
// the timestamp to now when omitted.
func (r *TriggerEventRequest) ToEvent() (*Event, error) {
	event, err := NewEvent(r.Type, r.Data)
	if err != nil {
		return nil, err
	}

	if r.Timestamp != nil {
		event.Timestamp = r.Timestamp.UTC()
	}

	return event, nil
}
