package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIsValidEventType(t *testing.T) {
	valid := []string{
		"poll.created",
		"invoice.paid",
		"maintenance.updated",
		"custom_integration.sync",
		"single",
		"a.b.c",
	}
	for _, s := range valid {
		if !IsValidEventType(s) {
			t.Errorf("IsValidEventType(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"has space",
		"trailing.",
		".leading",
		"double..dot",
		"bad-char!",
		strings.Repeat("a", 65),
	}
	for _, s := range invalid {
		if IsValidEventType(s) {
			t.Errorf("IsValidEventType(%q) = true, want false", s)
		}
	}
}

func TestValidateEventTypes(t *testing.T) {
	if err := ValidateEventTypes([]string{EventPollCreated, EventPollClosed}); err != nil {
		t.Errorf("valid set rejected: %v", err)
	}

	if err := ValidateEventTypes(nil); err == nil {
		t.Error("empty set must be rejected")
	}

	if err := ValidateEventTypes([]string{EventPollCreated, EventPollCreated}); err == nil {
		t.Error("duplicate event types must be rejected")
	}

	if err := ValidateEventTypes([]string{"not valid"}); err == nil {
		t.Error("malformed event type must be rejected")
	}
}

func TestWebhookResponseOmitsSecret(t *testing.T) {
	webhook := Webhook{
		ID:        uuid.New(),
		URL:       "https://example.com/hook",
		Events:    []string{EventAnnouncementPosted},
		Secret:    "super-secret",
		CreatedBy: "admin",
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	out, err := json.Marshal(webhook.Response())
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	if strings.Contains(string(out), "secret") || strings.Contains(string(out), "super-secret") {
		t.Errorf("read model leaks secret: %s", out)
	}
	if !strings.Contains(string(out), webhook.URL) {
		t.Errorf("read model missing url: %s", out)
	}
}

func TestDeliveryStatus(t *testing.T) {
	for _, s := range []DeliveryStatus{DeliveryPending, DeliverySuccess, DeliveryFailed} {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v", s, err)
		}
	}

	if err := DeliveryStatus("done").Validate(); err == nil {
		t.Error("unknown status must be invalid")
	}

	if !DeliverySuccess.IsTerminal() {
		t.Error("success must be terminal")
	}
	if DeliveryFailed.IsTerminal() {
		t.Error("failed must not be terminal (retryable)")
	}
	if DeliveryPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
}

func TestTriggerEventRequestToEvent(t *testing.T) {
	ts := time.Date(2026, 5, 4, 12, 0, 0, 0, time.FixedZone("IST", 3*3600))
	req := TriggerEventRequest{
		Type:      EventInvoiceIssued,
		Data:      json.RawMessage(`{"invoice_id":"inv-1"}`),
		Timestamp: &ts,
	}

	event, err := req.ToEvent()
	if err != nil {
		t.Fatalf("ToEvent failed: %v", err)
	}

	if event.ID == uuid.Nil {
		t.Error("event id not generated")
	}
	if !event.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", event.Timestamp, ts)
	}
	if event.Timestamp.Location() != time.UTC {
		t.Error("timestamp must be normalized to UTC")
	}

	// Without an explicit timestamp, now is used.
	req.Timestamp = nil
	event, err = req.ToEvent()
	if err != nil {
		t.Fatalf("ToEvent failed: %v", err)
	}
	if time.Since(event.Timestamp) > time.Minute {
		t.Errorf("default timestamp not recent: %v", event.Timestamp)
	}
}
