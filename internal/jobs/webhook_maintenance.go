// webhook_maintenance.go implements the WebhookMaintenance background job: a
// retry sweep over transport-failed deliveries on one interval, and retention
// cleanup of old delivery rows on another. Both operations are also exposed on
// admin routes; the job just drives them on a schedule so an idle install
// still converges.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/pak-sh/pakweb/internal/config"
	"github.com/pak-sh/pakweb/internal/webhook"
)

// WebhookMaintenance periodically retries failed deliveries and prunes old ones.
type WebhookMaintenance struct {
	engine   *webhook.Service
	cfg      config.WebhooksConfig
	stopChan chan struct{}
}

// NewWebhookMaintenance creates the maintenance job around the delivery engine
func NewWebhookMaintenance(engine *webhook.Service, cfg config.WebhooksConfig) *WebhookMaintenance {
	return &WebhookMaintenance{
		engine:   engine,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start runs the maintenance loop until ctx is cancelled or Stop is called.
// Retry and cleanup tick independently; a zero interval disables that leg.
func (m *WebhookMaintenance) Start(ctx context.Context) {
	if m.cfg.RetryInterval <= 0 && m.cfg.CleanupInterval <= 0 {
		slog.Info("webhook maintenance disabled, no intervals configured")
		return
	}

	retryC := make(<-chan time.Time)
	if m.cfg.RetryInterval > 0 {
		retryTicker := time.NewTicker(m.cfg.RetryInterval)
		defer retryTicker.Stop()
		retryC = retryTicker.C
	}

	cleanupC := make(<-chan time.Time)
	if m.cfg.CleanupInterval > 0 {
		cleanupTicker := time.NewTicker(m.cfg.CleanupInterval)
		defer cleanupTicker.Stop()
		cleanupC = cleanupTicker.C
	}

	slog.Info("webhook maintenance started",
		"retry_interval", m.cfg.RetryInterval,
		"cleanup_interval", m.cfg.CleanupInterval,
		"retention_days", m.cfg.CleanupDays)

	for {
		select {
		case <-retryC:
			m.runRetry(ctx)
		case <-cleanupC:
			m.runCleanup(ctx)
		case <-m.stopChan:
			slog.Info("webhook maintenance stopped")
			return
		case <-ctx.Done():
			slog.Info("webhook maintenance context cancelled")
			return
		}
	}
}

// Stop signals the maintenance loop to exit.
func (m *WebhookMaintenance) Stop() {
	close(m.stopChan)
}

func (m *WebhookMaintenance) runRetry(ctx context.Context) {
	report, err := m.engine.RetryFailedDeliveries(ctx)
	if err != nil {
		slog.Error("webhook retry sweep failed", "error", err)
		return
	}
	if report.Retried > 0 {
		slog.Info("webhook retry sweep",
			"retried", report.Retried, "succeeded", report.Succeeded, "skipped", report.Skipped)
	}
}

func (m *WebhookMaintenance) runCleanup(ctx context.Context) {
	if _, err := m.engine.CleanupOldDeliveries(ctx, m.cfg.CleanupDays); err != nil {
		slog.Error("webhook delivery cleanup failed", "error", err)
	}
}
