package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/hcmerrors"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
)

// DeliveriesRepository defines the interface for delivery ledger data access.
type DeliveriesRepository interface {
	Create(ctx context.Context, webhookID uuid.UUID, eventType string, payload json.RawMessage) (*models.WebhookDelivery, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int, status *models.DeliveryStatus) ([]models.WebhookDelivery, error)
	ListPending(ctx context.Context, limit int) ([]models.WebhookDelivery, error)
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.WebhookDelivery, error)
	MarkSuccess(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	Retry(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context, webhookID uuid.UUID, status *models.DeliveryStatus) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

const defaultDeliveriesLimit = 50

// DeliveriesService handles business logic for the delivery ledger.
type DeliveriesService struct {
	repo DeliveriesRepository
}

// NewDeliveriesService creates a new deliveries service.
func NewDeliveriesService(repo DeliveriesRepository) *DeliveriesService {
	return &DeliveriesService{repo: repo}
}

// CreateDelivery records a new pending delivery for a webhook.
func (s *DeliveriesService) CreateDelivery(ctx context.Context, webhookID uuid.UUID, eventType string, payload json.RawMessage) (*models.WebhookDelivery, error) {
	return s.repo.Create(ctx, webhookID, eventType, payload)
}

// GetDelivery retrieves a single delivery by ID.
func (s *DeliveriesService) GetDelivery(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	return s.repo.GetByID(ctx, id)
}

// ListDeliveries retrieves the most recent deliveries for a webhook,
// optionally narrowed to one status. Listing works for deleted webhooks too:
// history outlives the subscription.
func (s *DeliveriesService) ListDeliveries(ctx context.Context, webhookID uuid.UUID, filters *models.ListDeliveriesFilters) ([]models.WebhookDelivery, error) {
	limit := defaultDeliveriesLimit

	var status *models.DeliveryStatus
	if filters != nil {
		if filters.Limit > 0 {
			limit = filters.Limit
		}
		if filters.Status != "" {
			st := models.DeliveryStatus(filters.Status)
			if err := st.Validate(); err != nil {
				return nil, hcmerrors.NewValidationError("status", err.Error())
			}
			status = &st
		}
	}

	return s.repo.ListByWebhook(ctx, webhookID, limit, status)
}

// ListPending retrieves pending deliveries oldest first.
func (s *DeliveriesService) ListPending(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	return s.repo.ListPending(ctx, limit)
}

// ListRetryable retrieves failed deliveries with remaining attempt budget,
// stalest first.
func (s *DeliveriesService) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.WebhookDelivery, error) {
	return s.repo.ListRetryable(ctx, maxAttempts, limit)
}

// RetryDelivery resets a failed or stuck delivery to pending so the worker
// picks it up again. Successful deliveries cannot be retried.
func (s *DeliveriesService) RetryDelivery(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	if err := s.repo.Retry(ctx, id); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, id)
}

// ReportOutcome records a delivery attempt result. Success transitions the
// delivery to its terminal state; failure records the error and increments
// the attempt count.
func (s *DeliveriesService) ReportOutcome(ctx context.Context, id uuid.UUID, success bool, errMsg string) error {
	if success {
		return s.repo.MarkSuccess(ctx, id)
	}

	return s.repo.MarkFailed(ctx, id, errMsg)
}

// GetStats summarizes delivery outcomes for a webhook. The success rate is
// success/total as a percentage with two decimals, "0.00" when the webhook
// has no deliveries at all.
func (s *DeliveriesService) GetStats(ctx context.Context, webhookID uuid.UUID) (*models.DeliveryStats, error) {
	total, err := s.repo.CountByStatus(ctx, webhookID, nil)
	if err != nil {
		return nil, err
	}

	success, err := s.countStatus(ctx, webhookID, models.DeliverySuccess)
	if err != nil {
		return nil, err
	}

	failed, err := s.countStatus(ctx, webhookID, models.DeliveryFailed)
	if err != nil {
		return nil, err
	}

	pending, err := s.countStatus(ctx, webhookID, models.DeliveryPending)
	if err != nil {
		return nil, err
	}

	rate := "0.00"
	if total > 0 {
		rate = fmt.Sprintf("%.2f", float64(success)/float64(total)*100)
	}

	return &models.DeliveryStats{
		Total:       total,
		Success:     success,
		Failed:      failed,
		Pending:     pending,
		SuccessRate: rate,
	}, nil
}

func (s *DeliveriesService) countStatus(ctx context.Context, webhookID uuid.UUID, status models.DeliveryStatus) (int64, error) {
	return s.repo.CountByStatus(ctx, webhookID, &status)
}
