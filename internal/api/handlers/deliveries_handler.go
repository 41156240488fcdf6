package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/api/response"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/hcmerrors"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
)

// DeliveriesService defines the interface for delivery ledger business logic.
type DeliveriesService interface {
	GetDelivery(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
	RetryDelivery(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
}

// DeliveriesHandler handles HTTP requests for individual deliveries.
type DeliveriesHandler struct {
	service DeliveriesService
}

// NewDeliveriesHandler creates a new deliveries handler.
func NewDeliveriesHandler(service DeliveriesService) *DeliveriesHandler {
	return &DeliveriesHandler{service: service}
}

// Get handles GET /v1/deliveries/{id}.
func (h *DeliveriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	delivery, err := h.service.GetDelivery(r.Context(), id)
	if err != nil {
		if errors.Is(err, hcmerrors.ErrNotFound) {
			response.RespondNotFound(w, "Delivery not found")
			return
		}
		slog.Error("Failed to get delivery", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, delivery)
}

// Retry handles POST /v1/deliveries/{id}/retry. Retrying a successful
// delivery is a conflict; the success state is terminal.
func (h *DeliveriesHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	delivery, err := h.service.RetryDelivery(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, hcmerrors.ErrNotFound):
			response.RespondNotFound(w, "Delivery not found")
		case errors.Is(err, hcmerrors.ErrIllegalTransition):
			response.RespondConflict(w, err.Error())
		default:
			slog.Error("Failed to retry delivery", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}
		return
	}

	response.RespondJSON(w, http.StatusOK, delivery)
}
