// Package handlers provides HTTP handlers for the webhook subsystem API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/api/response"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/api/validation"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/hcmerrors"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
)

// WebhooksService defines the interface for webhook subscription business logic.
type WebhooksService interface {
	CreateWebhook(ctx context.Context, req *models.CreateWebhookRequest) (*models.WebhookResponse, error)
	GetWebhook(ctx context.Context, id uuid.UUID, recentLimit int) (*models.WebhookDetail, error)
	ListWebhooks(ctx context.Context, filters *models.ListWebhooksFilters) (*models.ListWebhooksResponse, error)
	UpdateWebhook(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.WebhookResponse, error)
	DeleteWebhook(ctx context.Context, id uuid.UUID) error
}

// DeliveriesReader is the slice of the deliveries service the webhook
// endpoints expose (history and stats).
type DeliveriesReader interface {
	ListDeliveries(ctx context.Context, webhookID uuid.UUID, filters *models.ListDeliveriesFilters) ([]models.WebhookDelivery, error)
	GetStats(ctx context.Context, webhookID uuid.UUID) (*models.DeliveryStats, error)
}

// WebhooksHandler handles HTTP requests for webhook subscriptions.
type WebhooksHandler struct {
	service    WebhooksService
	deliveries DeliveriesReader
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(service WebhooksService, deliveries DeliveriesReader) *WebhooksHandler {
	return &WebhooksHandler{service: service, deliveries: deliveries}
}

// parseIDParam extracts and parses the {id} path parameter.
func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		response.RespondBadRequest(w, "Webhook ID is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return uuid.Nil, false
	}

	return id, true
}

// Create handles POST /v1/webhooks.
func (h *WebhooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateWebhookRequest
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

	webhook, err := h.service.CreateWebhook(r.Context(), &req)
	if err != nil {
		if errors.Is(err, hcmerrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())
			return
		}
		slog.Error("Failed to create webhook", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusCreated, webhook)
}

// Get handles GET /v1/webhooks/{id}.
func (h *WebhooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	recentLimit := 0
	if v := r.URL.Query().Get("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.RespondBadRequest(w, "recent must be a non-negative integer")
			return
		}
		recentLimit = n
	}

	webhook, err := h.service.GetWebhook(r.Context(), id, recentLimit)
	if err != nil {
		if errors.Is(err, hcmerrors.ErrNotFound) {
			response.RespondNotFound(w, "Webhook not found")
			return
		}
		slog.Error("Failed to get webhook", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, webhook)
}

// List handles GET /v1/webhooks.
func (h *WebhooksHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListWebhooksFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.ListWebhooks(r.Context(), filters)
	if err != nil {
		slog.Error("Failed to list webhooks", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Update handles PATCH /v1/webhooks/{id}.
func (h *WebhooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req models.UpdateWebhookRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body for update", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	webhook, err := h.service.UpdateWebhook(r.Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, hcmerrors.ErrNotFound):
			response.RespondNotFound(w, "Webhook not found")
		case errors.Is(err, hcmerrors.ErrValidation):
			response.RespondBadRequest(w, err.Error())
		default:
			slog.Error("Failed to update webhook", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}
		return
	}

	response.RespondJSON(w, http.StatusOK, webhook)
}

// Delete handles DELETE /v1/webhooks/{id}.
func (h *WebhooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteWebhook(r.Context(), id); err != nil {
		if errors.Is(err, hcmerrors.ErrNotFound) {
			response.RespondNotFound(w, "Webhook not found")
			return
		}
		slog.Error("Failed to delete webhook", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondNoContent(w)
}

// ListDeliveries handles GET /v1/webhooks/{id}/deliveries.
func (h *WebhooksHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	filters := &models.ListDeliveriesFilters{}
	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	deliveries, err := h.deliveries.ListDeliveries(r.Context(), id, filters)
	if err != nil {
		if errors.Is(err, hcmerrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())
			return
		}
		slog.Error("Failed to list deliveries", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": deliveries})
}

// Stats handles GET /v1/webhooks/{id}/stats.
func (h *WebhooksHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	stats, err := h.deliveries.GetStats(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get delivery stats", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, stats)
}
