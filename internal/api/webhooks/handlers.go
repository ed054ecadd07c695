// Package webhooks implements the /api/v1/webhooks endpoints: subscription
// CRUD, test deliveries, delivery history, and the admin maintenance triggers.
package webhooks

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pak-sh/pakweb/internal/auth"
	"github.com/pak-sh/pakweb/internal/db/models"
	"github.com/pak-sh/pakweb/internal/db/repositories"
	"github.com/pak-sh/pakweb/internal/middleware"
	"github.com/pak-sh/pakweb/internal/webhook"
)

// knownEvents is the set of event names a webhook may subscribe to.
var knownEvents = map[string]bool{
	webhook.EventDeploymentStarted:   true,
	webhook.EventDeploymentCompleted: true,
	webhook.EventDeploymentFailed:    true,
	webhook.EventProjectCreated:      true,
	webhook.EventProjectDeleted:      true,
}

// Handlers handles webhook subscription and maintenance endpoints
type Handlers struct {
	engine      *webhook.Service
	repo        *repositories.WebhookRepository
	cleanupDays int
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine *webhook.Service, repo *repositories.WebhookRepository, cleanupDays int) *Handlers {
	return &Handlers{
		engine:      engine,
		repo:        repo,
		cleanupDays: cleanupDays,
	}
}

// webhookJSON shapes a webhook for API responses. The signing secret is only
// ever returned at creation time.
func webhookJSON(w *models.Webhook) gin.H {
	return gin.H{
		"id":              w.ID,
		"name":            w.Name,
		"url":             w.URL,
		"events":          w.Events,
		"is_active":       w.IsActive,
		"timeout_seconds": w.TimeoutSeconds,
		"success_count":   w.SuccessCount,
		"failure_count":   w.FailureCount,
		"last_triggered":  w.LastTriggered,
		"created_at":      w.CreatedAt,
		"updated_at":      w.UpdatedAt,
	}
}

func deliveryJSON(d *models.WebhookDelivery) gin.H {
	return gin.H{
		"id":            d.ID,
		"webhook_id":    d.WebhookID,
		"event":         d.Event,
		"status_code":   d.StatusCode,
		"success":       d.Succeeded(),
		"error_message": d.ErrorMessage,
		"duration_ms":   d.DurationMS,
		"retry_count":   d.RetryCount,
		"created_at":    d.CreatedAt,
	}
}

func validateEvents(events []string) (string, bool) {
	for _, e := range events {
		if !knownEvents[e] {
			return e, false
		}
	}
	return "", true
}

// loadWebhook fetches the webhook and enforces ownership; it writes the error
// response and returns nil on denial or absence.
func (h *Handlers) loadWebhook(c *gin.Context, webhookID string) *models.Webhook {
	hook, err := h.repo.GetByID(c.Request.Context(), webhookID)
	if err != nil {
		slog.Error("failed to load webhook", "error", err, "webhook_id", webhookID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load webhook"})
		return nil
	}
	if hook == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
		return nil
	}
	user, _ := middleware.CurrentUser(c)
	if !user.IsAdmin && hook.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your webhook"})
		return nil
	}
	return hook
}

// GET /api/v1/webhooks
func (h *Handlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		hooks, err := h.repo.ListByUser(c.Request.Context(), user.ID)
		if err != nil {
			slog.Error("failed to list webhooks", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list webhooks"})
			return
		}

		out := make([]gin.H, 0, len(hooks))
		for _, hook := range hooks {
			out = append(out, webhookJSON(hook))
		}
		c.JSON(http.StatusOK, gin.H{"webhooks": out})
	}
}

// CreateWebhookRequest represents a new webhook subscription
type CreateWebhookRequest struct {
	Name           string   `json:"name" binding:"required"`
	URL            string   `json:"url" binding:"required,url"`
	Events         []string `json:"events" binding:"required,min=1"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	GenerateSecret bool     `json:"generate_secret"`
}

// @Summary      Create webhook
// @Description  Subscribes a URL to events. When generate_secret is set, the signing secret is returned once in this response and never again.
// @Tags         Webhooks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateWebhookRequest  true  "Webhook subscription"
// @Success      201  {object}  map[string]interface{}  "webhook, secret?"
// @Failure      400  {object}  map[string]interface{}  "Unknown event name"
// @Router       /api/v1/webhooks [post]
// POST /api/v1/webhooks
func (h *Handlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		if bad, ok := validateEvents(req.Events); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event: " + bad})
			return
		}

		user, _ := middleware.CurrentUser(c)
		hook := &models.Webhook{
			UserID:         user.ID,
			Name:           req.Name,
			URL:            req.URL,
			Events:         req.Events,
			IsActive:       true,
			TimeoutSeconds: req.TimeoutSeconds,
		}

		var secret string
		if req.GenerateSecret {
			s, err := auth.GenerateWebhookSecret()
			if err != nil {
				slog.Error("failed to generate webhook secret", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create webhook"})
				return
			}
			secret = s
			hook.Secret = s
		}

		if err := h.repo.Create(c.Request.Context(), hook); err != nil {
			slog.Error("failed to create webhook", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create webhook"})
			return
		}

		resp := gin.H{"webhook": webhookJSON(hook)}
		if secret != "" {
			resp["secret"] = secret
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// GET /api/v1/webhooks/:id
func (h *Handlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		hook := h.loadWebhook(c, c.Param("id"))
		if hook == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"webhook": webhookJSON(hook)})
	}
}

// UpdateWebhookRequest carries mutable webhook fields; nil means unchanged
type UpdateWebhookRequest struct {
	Name           *string   `json:"name"`
	URL            *string   `json:"url"`
	Events         *[]string `json:"events"`
	IsActive       *bool     `json:"is_active"`
	TimeoutSeconds *int      `json:"timeout_seconds"`
}

// PUT /api/v1/webhooks/:id
func (h *Handlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		hook := h.loadWebhook(c, c.Param("id"))
		if hook == nil {
			return
		}

		if req.Name != nil {
			hook.Name = *req.Name
		}
		if req.URL != nil {
			hook.URL = *req.URL
		}
		if req.Events != nil {
			if bad, ok := validateEvents(*req.Events); !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event: " + bad})
				return
			}
			hook.Events = *req.Events
		}
		if req.IsActive != nil {
			hook.IsActive = *req.IsActive
		}
		if req.TimeoutSeconds != nil {
			hook.TimeoutSeconds = *req.TimeoutSeconds
		}

		if err := h.repo.Update(c.Request.Context(), hook); err != nil {
			slog.Error("failed to update webhook", "error", err, "webhook_id", hook.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update webhook"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"webhook": webhookJSON(hook)})
	}
}

// DELETE /api/v1/webhooks/:id
func (h *Handlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		hook := h.loadWebhook(c, c.Param("id"))
		if hook == nil {
			return
		}

		if err := h.repo.Delete(c.Request.Context(), hook.ID); err != nil {
			slog.Error("failed to delete webhook", "error", err, "webhook_id", hook.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete webhook"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Webhook deleted"})
	}
}

// POST /api/v1/webhooks/:id/test
// Sends a synthetic event to just this webhook, recording the delivery like
// any real one.
func (h *Handlers) Test() gin.HandlerFunc {
	return func(c *gin.Context) {
		hook := h.loadWebhook(c, c.Param("id"))
		if hook == nil {
			return
		}

		result := h.engine.DeliverToWebhook(c.Request.Context(), hook, "webhook.test", gin.H{
			"webhook_id": hook.ID,
			"message":    "Test delivery from PAK.sh web console",
			"sent_at":    time.Now().UTC().Format(time.RFC3339),
		})

		status := http.StatusOK
		if !result.Success {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"result": result})
	}
}

// GET /api/v1/webhooks/:id/deliveries?limit=50
func (h *Handlers) ListDeliveries() gin.HandlerFunc {
	return func(c *gin.Context) {
		hook := h.loadWebhook(c, c.Param("id"))
		if hook == nil {
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit < 1 || limit > 200 {
			limit = 50
		}

		deliveries, err := h.repo.ListDeliveriesByWebhook(c.Request.Context(), hook.ID, limit)
		if err != nil {
			slog.Error("failed to list deliveries", "error", err, "webhook_id", hook.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list deliveries"})
			return
		}

		out := make([]gin.H, 0, len(deliveries))
		for _, d := range deliveries {
			out = append(out, deliveryJSON(d))
		}
		c.JSON(http.StatusOK, gin.H{"deliveries": out})
	}
}

// GET /api/v1/webhooks/:id/stats
func (h *Handlers) Stats() gin.HandlerFunc {
	return func(c *gin.Context) {
		hook := h.loadWebhook(c, c.Param("id"))
		if hook == nil {
			return
		}

		stats, err := h.engine.DeliveryStats(c.Request.Context(), hook.ID)
		if err != nil {
			slog.Error("failed to compute webhook stats", "error", err, "webhook_id", hook.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

// POST /api/v1/webhooks/retry-failed (admin)
func (h *Handlers) RetryFailed() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.engine.RetryFailedDeliveries(c.Request.Context())
		if err != nil {
			slog.Error("manual retry sweep failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Retry sweep failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"report": report})
	}
}

// POST /api/v1/webhooks/cleanup (admin)
func (h *Handlers) Cleanup() gin.HandlerFunc {
	return func(c *gin.Context) {
		days := h.cleanupDays
		if v := c.Query("days"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
				return
			}
			days = parsed
		}

		deleted, err := h.engine.CleanupOldDeliveries(c.Request.Context(), days)
		if err != nil {
			slog.Error("manual delivery cleanup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted, "days": days})
	}
}
