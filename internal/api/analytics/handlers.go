// Package analytics implements the /api/v1/analytics read-only reporting
// endpoints over the deployment ledger and webhook delivery history.
package analytics

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pak-sh/pakweb/internal/analytics"
	"github.com/pak-sh/pakweb/internal/ledger"
	"github.com/pak-sh/pakweb/internal/middleware"
)

// Handlers handles analytics endpoints
type Handlers struct {
	svc    *analytics.Service
	ledger *ledger.Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc *analytics.Service, ledgerSvc *ledger.Service) *Handlers {
	return &Handlers{svc: svc, ledger: ledgerSvc}
}

// GET /api/v1/analytics/system (admin)
func (h *Handlers) System() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.svc.System(c.Request.Context())
		if err != nil {
			slog.Error("system analytics failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// GET /api/v1/analytics/user
func (h *Handlers) User() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		report, err := h.svc.User(c.Request.Context(), user.ID)
		if err != nil {
			slog.Error("user analytics failed", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// GET /api/v1/analytics/project/:id
func (h *Handlers) Project() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")

		project, err := h.ledger.GetProject(c.Request.Context(), projectID)
		if err != nil {
			slog.Error("failed to load project", "error", err, "project_id", projectID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load project"})
			return
		}
		if project == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		user, _ := middleware.CurrentUser(c)
		if !user.IsAdmin && project.OwnerID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not your project"})
			return
		}

		report, err := h.svc.Project(c.Request.Context(), projectID)
		if err != nil {
			slog.Error("project analytics failed", "error", err, "project_id", projectID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// GET /api/v1/analytics/webhooks (admin)
func (h *Handlers) Webhooks() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.svc.Webhooks(c.Request.Context())
		if err != nil {
			slog.Error("webhook analytics failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
