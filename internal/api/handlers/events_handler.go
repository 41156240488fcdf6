package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/api/response"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/api/validation"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
)

// EventDispatcher fans an event out to subscribed webhooks.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *models.Event) (int, error)
}

// EventsHandler handles event trigger requests.
type EventsHandler struct {
	dispatcher EventDispatcher
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(dispatcher EventDispatcher) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher}
}

// triggerEventResponse reports how many deliveries a trigger created.
type triggerEventResponse struct {
	EventID           string `json:"event_id"`
	DeliveriesCreated int    `json:"deliveries_created"`
}

// Trigger handles POST /v1/events. Delivery happens asynchronously, so a
// successful trigger returns 202 with the number of deliveries recorded.
// An event nobody subscribes to is still accepted.
func (h *EventsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req models.TriggerEventRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	event, err := req.ToEvent()
	if err != nil {
		slog.Error("Failed to build event", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	created, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		slog.Error("Failed to dispatch event", "method", r.Method, "path", r.URL.Path, "event_type", event.Type, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusAccepted, triggerEventResponse{
		EventID:           event.ID.String(),
		DeliveriesCreated: created,
	})
}
