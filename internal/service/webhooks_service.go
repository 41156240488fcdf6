package service

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/hcmerrors"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/signature"
)

// WebhooksRepository defines the interface for webhook subscription data access.
type WebhooksRepository interface {
	Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookResponse, error)
	GetByIDInternal(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	List(ctx context.Context, filters *models.ListWebhooksFilters) ([]models.WebhookResponse, error)
	Count(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListActiveForEventType(ctx context.Context, eventType string) ([]models.Webhook, error)
}

// recentDeliveriesReader is the slice of the deliveries store the registry
// needs to build WebhookDetail.
type recentDeliveriesReader interface {
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int, status *models.DeliveryStatus) ([]models.WebhookDelivery, error)
}

const (
	defaultRecentDeliveries = 10
	maxRecentDeliveries     = 100
	defaultListLimit        = 100
)

// WebhooksService handles business logic for webhook subscriptions.
type WebhooksService struct {
	repo             WebhooksRepository
	deliveries       recentDeliveriesReader
	allowPrivateURLs bool
}

// NewWebhooksService creates a new webhooks service. allowPrivateURLs permits
// loopback and private-range endpoint hosts (local development only).
func NewWebhooksService(repo WebhooksRepository, deliveries recentDeliveriesReader, allowPrivateURLs bool) *WebhooksService {
	return &WebhooksService{
		repo:             repo,
		deliveries:       deliveries,
		allowPrivateURLs: allowPrivateURLs,
	}
}

// CreateWebhook registers a new webhook. A secret is generated when the caller
// does not supply one. The secret is never included in the response.
func (s *WebhooksService) CreateWebhook(ctx context.Context, req *models.CreateWebhookRequest) (*models.WebhookResponse, error) {
	if err := s.validateWebhookURL(req.URL); err != nil {
		return nil, err
	}

	if err := models.ValidateEventTypes(req.Events); err != nil {
		return nil, hcmerrors.NewValidationError("events", err.Error())
	}

	if req.Secret == "" {
		secret, err := signature.GenerateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate webhook secret: %w", err)
		}
		req.Secret = secret
	}

	webhook, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := webhook.Response()

	return &resp, nil
}

// GetWebhook retrieves a single webhook with its most recent deliveries.
// recentLimit <= 0 defaults to 10, capped at 100.
func (s *WebhooksService) GetWebhook(ctx context.Context, id uuid.UUID, recentLimit int) (*models.WebhookDetail, error) {
	if recentLimit <= 0 {
		recentLimit = defaultRecentDeliveries
	}
	if recentLimit > maxRecentDeliveries {
		recentLimit = maxRecentDeliveries
	}

	webhook, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	deliveries, err := s.deliveries.ListByWebhook(ctx, id, recentLimit, nil)
	if err != nil {
		return nil, err
	}

	return &models.WebhookDetail{
		WebhookResponse:  *webhook,
		RecentDeliveries: deliveries,
	}, nil
}

// ListWebhooks retrieves webhooks matching the filters, newest first.
func (s *WebhooksService) ListWebhooks(ctx context.Context, filters *models.ListWebhooksFilters) (*models.ListWebhooksResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	webhooks, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListWebhooksResponse{
		Data:   webhooks,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// UpdateWebhook applies a partial update. Updated URL and events are validated
// the same way as at registration; events can never become empty.
func (s *WebhooksService) UpdateWebhook(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.WebhookResponse, error) {
	if req.URL != nil {
		if err := s.validateWebhookURL(*req.URL); err != nil {
			return nil, err
		}
	}

	if req.Events != nil {
		if err := models.ValidateEventTypes(*req.Events); err != nil {
			return nil, hcmerrors.NewValidationError("events", err.Error())
		}
	}

	webhook, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	resp := webhook.Response()

	return &resp, nil
}

// DeleteWebhook removes a webhook. Delivery history is retained for audit.
func (s *WebhooksService) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// validateWebhookURL checks that raw is an absolute http(s) URL with a host.
// Unless private URLs are allowed, loopback and private-range hosts are
// rejected to keep registered endpoints from reaching internal services.
// Hostnames are checked literally; resolution-time guarding is the sender's
// transport concern.
func (s *WebhooksService) validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return hcmerrors.NewValidationError("url", "url is not valid")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return hcmerrors.NewValidationError("url", "url scheme must be http or https")
	}

	host := u.Hostname()
	if host == "" {
		return hcmerrors.NewValidationError("url", "url must include a host")
	}

	if s.allowPrivateURLs {
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return hcmerrors.NewValidationError("url", "url host must not be localhost")
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return hcmerrors.NewValidationError("url", "url host must not be a private or loopback address")
		}
	}

	return nil
}
