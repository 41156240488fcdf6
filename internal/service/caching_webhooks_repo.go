package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
	"github.com/OfekItzhaki/horizon-hcm-sub003/pkg/cache"
)

// cachingWebhooksRepo wraps a WebhooksRepository with a cache for
// ListActiveForEventType, the hot query on the dispatch path. Every mutation
// invalidates the whole cache so deactivations and subscription changes take
// effect for all later fan-out decisions (bounded by the cache TTL otherwise).
type cachingWebhooksRepo struct {
	inner     WebhooksRepository
	listCache *cache.LoaderCache[[]models.Webhook]
}

// NewCachingWebhooksRepository returns a WebhooksRepository that caches
// ListActiveForEventType keyed by event type.
func NewCachingWebhooksRepository(inner WebhooksRepository, listCache *cache.LoaderCache[[]models.Webhook]) WebhooksRepository {
	return &cachingWebhooksRepo{
		inner:     inner,
		listCache: listCache,
	}
}

func (r *cachingWebhooksRepo) Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	w, err := r.inner.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}

	r.listCache.InvalidateAll()

	return w, nil
}

func (r *cachingWebhooksRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookResponse, error) {
	return r.inner.GetByID(ctx, id)
}

func (r *cachingWebhooksRepo) GetByIDInternal(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	return r.inner.GetByIDInternal(ctx, id)
}

func (r *cachingWebhooksRepo) List(ctx context.Context, filters *models.ListWebhooksFilters) ([]models.WebhookResponse, error) {
	return r.inner.List(ctx, filters)
}

func (r *cachingWebhooksRepo) Count(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error) {
	return r.inner.Count(ctx, filters)
}

func (r *cachingWebhooksRepo) Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	w, err := r.inner.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("update webhook: %w", err)
	}

	r.listCache.InvalidateAll()

	return w, nil
}

func (r *cachingWebhooksRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	r.listCache.InvalidateAll()

	return nil
}

func (r *cachingWebhooksRepo) ListActiveForEventType(ctx context.Context, eventType string) ([]models.Webhook, error) {
	webhooks, err := r.listCache.Get(ctx, eventType, func(ctx context.Context, key string) ([]models.Webhook, error) {
		return r.inner.ListActiveForEventType(ctx, key)
	})
	if err != nil {
		return nil, fmt.Errorf("list active for event type: %w", err)
	}

	return webhooks, nil
}
