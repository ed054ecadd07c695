package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pak-sh/pakweb/internal/db/models"
)

// WebhookRepository handles webhook subscription and delivery-record database
// operations for the delivery engine.
type WebhookRepository struct {
	db DBTX
}

// NewWebhookRepository creates a new WebhookRepository
func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *WebhookRepository) WithTx(tx *sql.Tx) *WebhookRepository {
	return &WebhookRepository{db: tx}
}

const webhookColumns = `
	id, user_id, name, url, secret, events, is_active, timeout_seconds,
	success_count, failure_count, last_triggered, created_at, updated_at
`

func scanWebhook(row interface{ Scan(...any) error }) (*models.Webhook, error) {
	w := &models.Webhook{}
	var events []byte
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Name,
		&w.URL,
		&w.Secret,
		&events,
		&w.IsActive,
		&w.TimeoutSeconds,
		&w.SuccessCount,
		&w.FailureCount,
		&w.LastTriggered,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &w.Events); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Create creates a new webhook subscription
func (r *WebhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	webhook.ID = uuid.New().String()
	webhook.CreatedAt = time.Now()
	webhook.UpdatedAt = webhook.CreatedAt
	if webhook.Events == nil {
		webhook.Events = []string{}
	}

	events, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhooks (
			id, user_id, name, url, secret, events, is_active, timeout_seconds, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		webhook.ID,
		webhook.UserID,
		webhook.Name,
		webhook.URL,
		webhook.Secret,
		events,
		webhook.IsActive,
		webhook.TimeoutSeconds,
		webhook.CreatedAt,
		webhook.UpdatedAt,
	)

	return err
}

// GetByID retrieves a webhook by ID
func (r *WebhookRepository) GetByID(ctx context.Context, webhookID string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`
	return scanWebhook(r.db.QueryRowContext(ctx, query, webhookID))
}

// ListByUser retrieves all of a user's webhooks, newest first
func (r *WebhookRepository) ListByUser(ctx context.Context, userID string) ([]*models.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	webhooks := make([]*models.Webhook, 0)
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}

	return webhooks, rows.Err()
}

// ListActiveForEvent retrieves all active webhooks subscribed to the event.
// The jsonb ? operator tests element membership in the events array.
func (r *WebhookRepository) ListActiveForEvent(ctx context.Context, event string) ([]*models.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE is_active = TRUE AND events ? $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	webhooks := make([]*models.Webhook, 0)
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}

	return webhooks, rows.Err()
}

// Update updates a webhook's subscription settings
func (r *WebhookRepository) Update(ctx context.Context, webhook *models.Webhook) error {
	webhook.UpdatedAt = time.Now()

	events, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}

	query := `
		UPDATE webhooks
		SET name = $2, url = $3, secret = $4, events = $5, is_active = $6,
		    timeout_seconds = $7, updated_at = $8
		WHERE id = $1
	`

	_, err = r.db.ExecContext(ctx, query,
		webhook.ID,
		webhook.Name,
		webhook.URL,
		webhook.Secret,
		events,
		webhook.IsActive,
		webhook.TimeoutSeconds,
		webhook.UpdatedAt,
	)

	return err
}

// Delete deletes a webhook (cascades to its delivery records)
func (r *WebhookRepository) Delete(ctx context.Context, webhookID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, webhookID)
	return err
}

// RecordOutcome stamps last_triggered and increments exactly one of the
// success/failure counters. A single UPDATE keeps concurrent fan-out workers
// from interleaving counter writes on the same webhook row.
func (r *WebhookRepository) RecordOutcome(ctx context.Context, webhookID string, success bool, at time.Time) error {
	query := `
		UPDATE webhooks
		SET success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
		    failure_count = failure_count + CASE WHEN $2 THEN 0 ELSE 1 END,
		    last_triggered = $3,
		    updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, webhookID, success, at)
	return err
}

// CreateDelivery appends a delivery record for one attempt
func (r *WebhookRepository) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	delivery.ID = uuid.New().String()
	delivery.CreatedAt = time.Now()

	query := `
		INSERT INTO webhook_deliveries (
			id, webhook_id, event, payload, status_code, response_body,
			error_message, duration_ms, retry_count, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.WebhookID,
		delivery.Event,
		delivery.Payload,
		delivery.StatusCode,
		delivery.ResponseBody,
		delivery.ErrorMessage,
		delivery.DurationMS,
		delivery.RetryCount,
		delivery.CreatedAt,
	)

	return err
}

// UpdateDeliveryRetry overwrites the retry bookkeeping on the original delivery
// row: incremented retry count, plus the latest status code, body, and error.
// Retries mutate history in place rather than appending new rows; the original
// attempt timestamp is preserved.
func (r *WebhookRepository) UpdateDeliveryRetry(ctx context.Context, delivery *models.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status_code = $2, response_body = $3, error_message = $4,
		    duration_ms = $5, retry_count = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.StatusCode,
		delivery.ResponseBody,
		delivery.ErrorMessage,
		delivery.DurationMS,
		delivery.RetryCount,
	)

	return err
}

const deliveryColumns = `
	id, webhook_id, event, payload, status_code, response_body, error_message,
	duration_ms, retry_count, created_at
`

func scanDelivery(row interface{ Scan(...any) error }) (*models.WebhookDelivery, error) {
	d := &models.WebhookDelivery{}
	err := row.Scan(
		&d.ID,
		&d.WebhookID,
		&d.Event,
		&d.Payload,
		&d.StatusCode,
		&d.ResponseBody,
		&d.ErrorMessage,
		&d.DurationMS,
		&d.RetryCount,
		&d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListFailedDeliveries retrieves transport-failed deliveries (no status code)
// still under the retry cap, oldest first.
func (r *WebhookRepository) ListFailedDeliveries(ctx context.Context, maxRetries int) ([]*models.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE status_code IS NULL AND retry_count < $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]*models.WebhookDelivery, 0)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// ListDeliveriesByWebhook retrieves the newest delivery records for one webhook
func (r *WebhookRepository) ListDeliveriesByWebhook(ctx context.Context, webhookID string, limit int) ([]*models.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]*models.WebhookDelivery, 0)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// DeleteDeliveriesBefore bulk-deletes delivery rows older than the cutoff and
// returns the count removed. Irreversible; there is no soft delete.
func (r *WebhookRepository) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeliveryCounts returns total and successful delivery counts for one webhook
func (r *WebhookRepository) DeliveryCounts(ctx context.Context, webhookID string) (total, successful int, err error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status_code >= 200 AND status_code < 300)
		FROM webhook_deliveries
		WHERE webhook_id = $1
	`
	err = r.db.QueryRowContext(ctx, query, webhookID).Scan(&total, &successful)
	return total, successful, err
}
