package webhook

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pak-sh/pakweb/internal/config"
	"github.com/pak-sh/pakweb/internal/db/models"
	"github.com/pak-sh/pakweb/internal/db/repositories"
	"github.com/pak-sh/pakweb/internal/telemetry"
)

// Event names published by the console. Webhooks subscribe to these by name.
const (
	EventDeploymentStarted   = "deployment.started"
	EventDeploymentCompleted = "deployment.completed"
	EventDeploymentFailed    = "deployment.failed"
	EventProjectCreated      = "project.created"
	EventProjectDeleted      = "project.deleted"
)

const (
	// responseBodyStoreLimit bounds the response body persisted on a delivery row.
	responseBodyStoreLimit = 1000
	// responseBodySummaryLimit bounds the body echoed back in a DeliveryResult.
	responseBodySummaryLimit = 200
)

// envelope is the outbound wire format. Timestamp is epoch seconds as a float.
type envelope struct {
	Event     string  `json:"event"`
	Timestamp float64 `json:"timestamp"`
	Data      any     `json:"data"`
}

// DeliveryResult is the outcome of one delivery attempt to one webhook.
type DeliveryResult struct {
	WebhookID  string `json:"webhook_id"`
	Success    bool   `json:"success"`
	StatusCode *int   `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int    `json:"duration_ms"`
}

// DeliveryReport aggregates one fan-out.
type DeliveryReport struct {
	Event      string           `json:"event"`
	Attempted  int              `json:"attempted"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []DeliveryResult `json:"results,omitempty"`
}

// RetryReport aggregates one retry sweep over transport-failed deliveries.
type RetryReport struct {
	Eligible  int `json:"eligible"`
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Service is the webhook delivery engine
type Service struct {
	db       *sql.DB
	cfg      config.WebhooksConfig
	webhooks *repositories.WebhookRepository
	client   *http.Client
}

// NewService creates a delivery engine. The HTTP client carries no global
// timeout; each attempt is bounded by the webhook's own timeout via context.
func NewService(db *sql.DB, cfg config.WebhooksConfig) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		webhooks: repositories.NewWebhookRepository(db),
		client:   &http.Client{},
	}
}

// DeliverEvent fans an event out to every active webhook subscribed to it.
// Matching webhooks are attempted concurrently and independently: one target
// failing, timing out, or misbehaving never blocks delivery to the others.
// Zero matching webhooks is a successful no-op that writes nothing.
func (s *Service) DeliverEvent(ctx context.Context, eventType string, payload any) (*DeliveryReport, error) {
	report := &DeliveryReport{Event: eventType}

	hooks, err := s.webhooks.ListActiveForEvent(ctx, eventType)
	if err != nil {
		slog.Error("failed to list webhooks for event", "event", eventType, "error", err)
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return report, nil
	}

	results := make([]DeliveryResult, len(hooks))
	var wg sync.WaitGroup
	for i, hook := range hooks {
		wg.Add(1)
		go func(i int, hook *models.Webhook) {
			defer wg.Done()
			results[i] = s.DeliverToWebhook(ctx, hook, eventType, payload)
		}(i, hook)
	}
	wg.Wait()

	report.Results = results
	report.Attempted = len(results)
	for _, r := range results {
		if r.Success {
			report.Successful++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// DeliverToWebhook performs one signed POST to one webhook and records the
// outcome: a delivery row for the attempt plus the webhook's counter update,
// committed together. Database errors during bookkeeping are logged and folded
// into the result; they do not propagate.
func (s *Service) DeliverToWebhook(ctx context.Context, hook *models.Webhook, eventType string, payload any) DeliveryResult {
	result := DeliveryResult{WebhookID: hook.ID}

	payloadJSON, err := CanonicalJSON(payload)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	attempt := s.post(ctx, hook, eventType, payloadJSON)

	result.StatusCode = attempt.statusCode
	result.DurationMS = attempt.durationMS
	result.Success = attempt.succeeded()
	if !result.Success {
		result.Error = attempt.summary()
	}

	delivery := &models.WebhookDelivery{
		WebhookID:    hook.ID,
		Event:        eventType,
		Payload:      string(payloadJSON),
		StatusCode:   attempt.statusCode,
		ResponseBody: attempt.body,
		ErrorMessage: attempt.errMsg,
		DurationMS:   attempt.durationMS,
	}
	if err := s.recordAttempt(ctx, hook.ID, delivery, result.Success); err != nil {
		slog.Error("failed to record webhook delivery",
			"webhook_id", hook.ID, "event", eventType, "error", err)
		result.Success = false
		if result.Error == "" {
			result.Error = fmt.Sprintf("failed to record delivery: %v", err)
		}
	}

	telemetry.WebhookDeliveriesTotal.WithLabelValues(eventType, attempt.outcome()).Inc()
	telemetry.WebhookDeliveryDuration.Observe(float64(attempt.durationMS) / 1000.0)
	return result
}

// recordAttempt commits the delivery row and the webhook's counter update in
// one transaction so the counters never drift from the delivery log.
func (s *Service) recordAttempt(ctx context.Context, webhookID string, delivery *models.WebhookDelivery, success bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	repo := s.webhooks.WithTx(tx)
	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		return err
	}
	if err := repo.RecordOutcome(ctx, webhookID, success, time.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

// attemptResult is the raw outcome of one HTTP POST before bookkeeping.
type attemptResult struct {
	statusCode *int
	body       string
	errMsg     string
	durationMS int
}

func (a *attemptResult) succeeded() bool {
	return a.statusCode != nil && *a.statusCode >= 200 && *a.statusCode < 300
}

func (a *attemptResult) outcome() string {
	switch {
	case a.succeeded():
		return "success"
	case a.statusCode != nil:
		return "http_error"
	default:
		return "transport_error"
	}
}

// summary is the short error string returned to callers; the stored delivery
// row keeps the longer body.
func (a *attemptResult) summary() string {
	if a.statusCode != nil {
		body := a.body
		if len(body) > responseBodySummaryLimit {
			body = body[:responseBodySummaryLimit]
		}
		return fmt.Sprintf("HTTP %d: %s", *a.statusCode, body)
	}
	return a.errMsg
}

// post performs one signed POST with the webhook's timeout applied. Timeouts
// and connection failures are reported as distinct transport errors; any
// received HTTP status, including non-2xx, is not a transport error.
func (s *Service) post(ctx context.Context, hook *models.Webhook, eventType string, payloadJSON []byte) attemptResult {
	var result attemptResult

	timeout := s.cfg.DefaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now()
	body, err := json.Marshal(envelope{
		Event:     eventType,
		Timestamp: float64(now.UnixNano()) / 1e9,
		Data:      json.RawMessage(payloadJSON),
	})
	if err != nil {
		result.errMsg = fmt.Sprintf("failed to marshal envelope: %v", err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		result.errMsg = fmt.Sprintf("invalid webhook url: %v", err)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("X-Webhook-Event", eventType)
	req.Header.Set("X-Webhook-ID", hook.ID)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(now.Unix(), 10))
	if hook.Secret != "" {
		// The signature covers the payload, not the envelope.
		signature, err := Sign(hook.Secret, json.RawMessage(payloadJSON))
		if err != nil {
			result.errMsg = fmt.Sprintf("failed to sign payload: %v", err)
			return result
		}
		req.Header.Set(SignatureHeader, signature)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	result.durationMS = int(time.Since(start).Milliseconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			result.errMsg = fmt.Sprintf("timeout after %s", timeout)
		} else {
			result.errMsg = fmt.Sprintf("connection error: %v", err)
		}
		return result
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	result.statusCode = &status

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyStoreLimit))
	result.body = string(raw)
	return result
}

// RetryFailedDeliveries re-attempts deliveries that failed at the transport
// level (no status code recorded) and are still under the retry cap. The retry
// updates the original delivery row in place: retry count incremented, and on
// success the status code filled in. The webhook's running counters already
// reflect the original attempt and are not touched. Missing or deactivated
// webhooks are skipped.
func (s *Service) RetryFailedDeliveries(ctx context.Context) (*RetryReport, error) {
	report := &RetryReport{}

	deliveries, err := s.webhooks.ListFailedDeliveries(ctx, s.cfg.MaxRetries)
	if err != nil {
		slog.Error("failed to list failed deliveries", "error", err)
		return nil, fmt.Errorf("failed to list failed deliveries: %w", err)
	}
	report.Eligible = len(deliveries)

	for _, delivery := range deliveries {
		hook, err := s.webhooks.GetByID(ctx, delivery.WebhookID)
		if err != nil {
			slog.Error("failed to resolve webhook for retry",
				"delivery_id", delivery.ID, "webhook_id", delivery.WebhookID, "error", err)
			report.Skipped++
			continue
		}
		if hook == nil || !hook.IsActive {
			report.Skipped++
			continue
		}

		attempt := s.post(ctx, hook, delivery.Event, []byte(delivery.Payload))
		report.Retried++

		delivery.RetryCount++
		delivery.DurationMS = attempt.durationMS
		delivery.ErrorMessage = attempt.errMsg
		if attempt.succeeded() {
			delivery.StatusCode = attempt.statusCode
			delivery.ResponseBody = attempt.body
			report.Succeeded++
		} else {
			// Status stays absent so the delivery remains retryable up to the cap.
			delivery.StatusCode = nil
			report.Failed++
		}

		if err := s.webhooks.UpdateDeliveryRetry(ctx, delivery); err != nil {
			slog.Error("failed to update delivery retry state",
				"delivery_id", delivery.ID, "error", err)
		}
	}

	slog.Info("webhook retry sweep finished",
		"eligible", report.Eligible, "retried", report.Retried,
		"succeeded", report.Succeeded, "skipped", report.Skipped)
	return report, nil
}

// CleanupOldDeliveries bulk-deletes delivery rows older than the given number
// of days and returns how many were removed. The deletion is permanent; a
// second run over the same window removes nothing.
func (s *Service) CleanupOldDeliveries(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := s.webhooks.DeleteDeliveriesBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to clean up webhook deliveries", "error", err)
		return 0, fmt.Errorf("failed to clean up deliveries: %w", err)
	}
	if removed > 0 {
		slog.Info("cleaned up webhook deliveries", "removed", removed, "older_than_days", days)
	}
	return removed, nil
}

// Stats summarizes one webhook's delivery history.
type Stats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// DeliveryStats computes delivery totals and success rate for one webhook
func (s *Service) DeliveryStats(ctx context.Context, webhookID string) (*Stats, error) {
	total, successful, err := s.webhooks.DeliveryCounts(ctx, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}

	stats := &Stats{Total: total, Successful: successful, Failed: total - successful}
	if total > 0 {
		stats.SuccessRate = float64(successful) * 100.0 / float64(total)
	}
	return stats, nil
}
