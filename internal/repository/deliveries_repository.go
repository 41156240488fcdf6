package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/hcmerrors"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
)

// DeliveriesRepository handles data access for webhook delivery records.
// All status transitions are single conditional UPDATEs guarded on the prior
// status, so a worker reporting an outcome and an administrator issuing a
// retry can never lose each other's write.
type DeliveriesRepository struct {
	db *pgxpool.Pool
}

// NewDeliveriesRepository creates a new deliveries repository.
func NewDeliveriesRepository(db *pgxpool.Pool) *DeliveriesRepository {
	return &DeliveriesRepository{db: db}
}

const deliveryColumns = "id, webhook_id, event_type, payload, status, attempts, error, created_at, updated_at"

func scanDelivery(row pgx.Row) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	err := row.Scan(
		&d.ID, &d.WebhookID, &d.EventType, &d.Payload,
		&d.Status, &d.Attempts, &d.Error, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

// Create inserts a new pending delivery with zero attempts. The payload is
// stored as-is: an immutable snapshot of the event data.
func (r *DeliveriesRepository) Create(ctx context.Context, webhookID uuid.UUID, eventType string, payload json.RawMessage) (*models.WebhookDelivery, error) {
	query := `
		INSERT INTO webhook_deliveries (
			webhook_id, event_type, payload, status, attempts
		)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING ` + deliveryColumns

	delivery, err := scanDelivery(r.db.QueryRow(ctx, query,
		webhookID, eventType, payload, models.DeliveryPending,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}

	return delivery, nil
}

// GetByID retrieves a single delivery by ID.
func (r *DeliveriesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`

	delivery, err := scanDelivery(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, hcmerrors.NewNotFoundError("delivery", "delivery not found")
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	return delivery, nil
}

// ListByWebhook retrieves the most recent deliveries for a webhook, newest
// first, optionally filtered by status.
func (r *DeliveriesRepository) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int, status *models.DeliveryStatus) ([]models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE webhook_id = $1`
	args := []interface{}{webhookID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC, seq DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	return r.queryDeliveries(ctx, query, args...)
}

// ListPending retrieves pending deliveries in insertion order (FIFO), so the
// worker drains each webhook's stream in creation order. seq is the
// tiebreaker for deliveries created within the same clock tick.
func (r *DeliveriesRepository) ListPending(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE status = $1
		ORDER BY seq ASC
		LIMIT $2
	`

	return r.queryDeliveries(ctx, query, models.DeliveryPending, limit)
}

// ListPendingForWebhook retrieves pending deliveries for one webhook, in
// insertion order.
func (r *DeliveriesRepository) ListPendingForWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]models.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE webhook_id = $1 AND status = $2
		ORDER BY seq ASC
		LIMIT $3
	`

	return r.queryDeliveries(ctx, query, webhookID, models.DeliveryPending, limit)
}

// ListRetryable retrieves failed deliveries that still have attempt budget,
// stalest first. The caller decides which of them are actually due; the
// ledger itself carries no backoff policy.
func (r *DeliveriesRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE status = $1 AND attempts < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	return r.queryDeliveries(ctx, query, models.DeliveryFailed, maxAttempts, limit)
}

func (r *DeliveriesRepository) queryDeliveries(ctx context.Context, query string, args ...interface{}) ([]models.WebhookDelivery, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []models.WebhookDelivery{}
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, *delivery)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}

	return deliveries, nil
}

// MarkSuccess transitions a delivery to success. Success is terminal:
// marking an already-successful delivery again is an idempotent no-op.
func (r *DeliveriesRepository) MarkSuccess(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status <> $1
	`

	result, err := r.db.Exec(ctx, query, models.DeliverySuccess, id)
	if err != nil {
		return fmt.Errorf("failed to mark delivery success: %w", err)
	}

	if result.RowsAffected() == 0 {
		delivery, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if delivery.Status.IsTerminal() {
			return nil // already success; idempotent
		}
		return fmt.Errorf("failed to mark delivery %s success", id)
	}

	return nil
}

// MarkFailed transitions a delivery to failed, records the error, and
// increments the attempt count. A successful delivery is terminal and cannot fail.
func (r *DeliveriesRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, error = $2, attempts = attempts + 1, updated_at = now()
		WHERE id = $3 AND status <> $4
	`

	result, err := r.db.Exec(ctx, query, models.DeliveryFailed, errMsg, id, models.DeliverySuccess)
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return hcmerrors.NewIllegalTransitionError("cannot fail a successful delivery")
	}

	return nil
}

// Retry resets a delivery to pending and clears its error. The attempt count
// is left untouched so the worker's backoff still reflects true history.
// Retrying a successful delivery is rejected.
func (r *DeliveriesRepository) Retry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, error = NULL, updated_at = now()
		WHERE id = $2 AND status <> $3
	`

	result, err := r.db.Exec(ctx, query, models.DeliveryPending, id, models.DeliverySuccess)
	if err != nil {
		return fmt.Errorf("failed to retry delivery: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return hcmerrors.NewIllegalTransitionError("cannot retry successful delivery")
	}

	return nil
}

// CountByStatus counts deliveries for a webhook, optionally filtered by status.
func (r *DeliveriesRepository) CountByStatus(ctx context.Context, webhookID uuid.UUID, status *models.DeliveryStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM webhook_deliveries WHERE webhook_id = $1`
	args := []interface{}{webhookID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}

	var count int64
	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}

	return count, nil
}

// CountPending counts all pending deliveries (ledger depth gauge).
func (r *DeliveriesRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM webhook_deliveries WHERE status = $1`,
		models.DeliveryPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending deliveries: %w", err)
	}

	return count, nil
}
