//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/hcmerrors"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
)

// setupTestPool starts a throwaway Postgres container, applies the migrations,
// and returns a connected pool.
//
// Run with: go test -tags=integration ./internal/repository/...
// Requires Docker.
func setupTestPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("hcm_test"),
		postgres.WithUsername("hcm"),
		postgres.WithPassword("hcm"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	for _, name := range []string{"0001_create_webhooks.sql", "0002_create_webhook_deliveries.sql"} {
		sql, err := os.ReadFile(filepath.Join("..", "..", "migrations", name))
		require.NoError(t, err)

		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err)
	}

	return pool
}

func createTestWebhook(t *testing.T, ctx context.Context, repo *WebhooksRepository, events ...string) *models.Webhook {
	t.Helper()

	if len(events) == 0 {
		events = []string{models.EventPollCreated}
	}

	webhook, err := repo.Create(ctx, &models.CreateWebhookRequest{
		URL:       "https://example.com/hooks/hcm",
		Events:    events,
		Secret:    "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		CreatedBy: "admin@example.com",
	})
	require.NoError(t, err)

	return webhook
}

func TestWebhooksRepository_Integration(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	repo := NewWebhooksRepository(pool)

	t.Run("create and get redacts secret", func(t *testing.T) {
		webhook := createTestWebhook(t, ctx, repo)
		require.True(t, webhook.IsActive)

		got, err := repo.GetByID(ctx, webhook.ID)
		require.NoError(t, err)
		require.Equal(t, webhook.URL, got.URL)
		require.Equal(t, webhook.Events, got.Events)

		internal, err := repo.GetByIDInternal(ctx, webhook.ID)
		require.NoError(t, err)
		require.Equal(t, webhook.Secret, internal.Secret)
	})

	t.Run("partial update preserves other fields", func(t *testing.T) {
		webhook := createTestWebhook(t, ctx, repo)

		active := false
		updated, err := repo.Update(ctx, webhook.ID, &models.UpdateWebhookRequest{IsActive: &active})
		require.NoError(t, err)
		require.False(t, updated.IsActive)
		require.Equal(t, webhook.URL, updated.URL)
		require.Equal(t, webhook.Events, updated.Events)
		require.Equal(t, webhook.Secret, updated.Secret)
	})

	t.Run("list active for event type", func(t *testing.T) {
		subscribed := createTestWebhook(t, ctx, repo, models.EventInvoiceIssued, models.EventInvoicePaid)
		createTestWebhook(t, ctx, repo, models.EventPollClosed)

		inactive := createTestWebhook(t, ctx, repo, models.EventInvoiceIssued)
		off := false
		_, err := repo.Update(ctx, inactive.ID, &models.UpdateWebhookRequest{IsActive: &off})
		require.NoError(t, err)

		matches, err := repo.ListActiveForEventType(ctx, models.EventInvoiceIssued)
		require.NoError(t, err)

		var ids []string
		for _, w := range matches {
			ids = append(ids, w.ID.String())
		}
		require.Contains(t, ids, subscribed.ID.String())
		require.NotContains(t, ids, inactive.ID.String())
	})

	t.Run("delete retains delivery history", func(t *testing.T) {
		deliveriesRepo := NewDeliveriesRepository(pool)
		webhook := createTestWebhook(t, ctx, repo)

		delivery, err := deliveriesRepo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{"poll_id":"p1"}`))
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, webhook.ID))

		_, err = repo.GetByID(ctx, webhook.ID)
		require.ErrorIs(t, err, hcmerrors.ErrNotFound)

		kept, err := deliveriesRepo.GetByID(ctx, delivery.ID)
		require.NoError(t, err)
		require.Equal(t, webhook.ID, kept.WebhookID)
	})

	t.Run("delete missing webhook", func(t *testing.T) {
		err := repo.Delete(ctx, createTestWebhook(t, ctx, repo).ID)
		require.NoError(t, err)
	})
}

func TestDeliveriesRepository_TransitionGuards_Integration(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	webhooksRepo := NewWebhooksRepository(pool)
	repo := NewDeliveriesRepository(pool)

	newDelivery := func(t *testing.T) *models.WebhookDelivery {
		t.Helper()
		webhook := createTestWebhook(t, ctx, webhooksRepo)
		d, err := repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{"poll_id":"p1"}`))
		require.NoError(t, err)
		require.Equal(t, models.DeliveryPending, d.Status)
		require.Zero(t, d.Attempts)
		return d
	}

	t.Run("failed then retry clears error keeps attempts", func(t *testing.T) {
		d := newDelivery(t)

		require.NoError(t, repo.MarkFailed(ctx, d.ID, "connection refused"))
		failed, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, models.DeliveryFailed, failed.Status)
		require.Equal(t, 1, failed.Attempts)
		require.NotNil(t, failed.Error)

		require.NoError(t, repo.Retry(ctx, d.ID))
		retried, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, models.DeliveryPending, retried.Status)
		require.Nil(t, retried.Error)
		require.Equal(t, 1, retried.Attempts)
	})

	t.Run("success is terminal", func(t *testing.T) {
		d := newDelivery(t)

		require.NoError(t, repo.MarkSuccess(ctx, d.ID))
		require.NoError(t, repo.MarkSuccess(ctx, d.ID), "marking success twice is idempotent")

		err := repo.Retry(ctx, d.ID)
		require.ErrorIs(t, err, hcmerrors.ErrIllegalTransition)
		require.EqualError(t, err, "cannot retry successful delivery")

		require.ErrorIs(t, repo.MarkFailed(ctx, d.ID, "late"), hcmerrors.ErrIllegalTransition)

		final, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, models.DeliverySuccess, final.Status)
		require.Zero(t, final.Attempts)
	})

	t.Run("pending list is FIFO", func(t *testing.T) {
		webhook := createTestWebhook(t, ctx, webhooksRepo)

		// Created back-to-back so several rows can land in the same
		// created_at microsecond; ordering must still follow insertion.
		var created []*models.WebhookDelivery
		for i := range 5 {
			d, err := repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
			require.NoError(t, err)
			created = append(created, d)
		}

		pending, err := repo.ListPendingForWebhook(ctx, webhook.ID, 10)
		require.NoError(t, err)
		require.Len(t, pending, 5)
		for i, d := range created {
			require.Equal(t, d.ID, pending[i].ID, "delivery %d out of insertion order", i)
		}
	})

	t.Run("list by webhook filters by status", func(t *testing.T) {
		webhook := createTestWebhook(t, ctx, webhooksRepo)

		ok, err := repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{}`))
		require.NoError(t, err)
		_, err = repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{}`))
		require.NoError(t, err)

		require.NoError(t, repo.MarkSuccess(ctx, ok.ID))

		success := models.DeliverySuccess
		filtered, err := repo.ListByWebhook(ctx, webhook.ID, 10, &success)
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		require.Equal(t, ok.ID, filtered[0].ID)

		all, err := repo.ListByWebhook(ctx, webhook.ID, 10, nil)
		require.NoError(t, err)
		require.Len(t, all, 2)
	})

	t.Run("retryable lists failed with budget left", func(t *testing.T) {
		webhook := createTestWebhook(t, ctx, webhooksRepo)

		budget, err := repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{}`))
		require.NoError(t, err)
		exhausted, err := repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{}`))
		require.NoError(t, err)

		require.NoError(t, repo.MarkFailed(ctx, budget.ID, "timeout"))
		for range 3 {
			require.NoError(t, repo.MarkFailed(ctx, exhausted.ID, "timeout"))
		}

		retryable, err := repo.ListRetryable(ctx, 3, 10)
		require.NoError(t, err)

		var ids []string
		for _, d := range retryable {
			ids = append(ids, d.ID.String())
		}
		require.Contains(t, ids, budget.ID.String())
		require.NotContains(t, ids, exhausted.ID.String())
	})

	t.Run("stats counts by status", func(t *testing.T) {
		webhook := createTestWebhook(t, ctx, webhooksRepo)

		d1, err := repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{}`))
		require.NoError(t, err)
		d2, err := repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{}`))
		require.NoError(t, err)
		_, err = repo.Create(ctx, webhook.ID, models.EventPollCreated, json.RawMessage(`{}`))
		require.NoError(t, err)

		require.NoError(t, repo.MarkSuccess(ctx, d1.ID))
		require.NoError(t, repo.MarkFailed(ctx, d2.ID, "boom"))

		total, err := repo.CountByStatus(ctx, webhook.ID, nil)
		require.NoError(t, err)
		require.EqualValues(t, 3, total)

		success := models.DeliverySuccess
		n, err := repo.CountByStatus(ctx, webhook.ID, &success)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	})

	t.Run("missing delivery yields not found", func(t *testing.T) {
		d := newDelivery(t)
		bogus := d.WebhookID // a uuid that is not a delivery id

		require.ErrorIs(t, repo.MarkSuccess(ctx, bogus), hcmerrors.ErrNotFound)
		require.ErrorIs(t, repo.MarkFailed(ctx, bogus, "x"), hcmerrors.ErrNotFound)
		require.ErrorIs(t, repo.Retry(ctx, bogus), hcmerrors.ErrNotFound)
	})
}
