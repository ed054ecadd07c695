// Package projects implements the /api/v1/projects and /api/v1/deployments
// endpoints: project CRUD, the deployment ledger, and deploy orchestration
// through the pak CLI bridge.
package projects

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pak-sh/pakweb/internal/db/models"
	"github.com/pak-sh/pakweb/internal/ledger"
	"github.com/pak-sh/pakweb/internal/middleware"
	"github.com/pak-sh/pakweb/internal/pak"
	"github.com/pak-sh/pakweb/internal/safego"
	"github.com/pak-sh/pakweb/internal/validation"
	"github.com/pak-sh/pakweb/internal/webhook"
)

// deployTimeout bounds the whole background deploy run, independent of the
// originating HTTP request which returns immediately.
const deployTimeout = 30 * time.Minute

// Handlers handles project and deployment endpoints
type Handlers struct {
	ledger *ledger.Service
	hooks  *webhook.Service
	pak    *pak.Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(ledgerSvc *ledger.Service, hooks *webhook.Service, pakSvc *pak.Service) *Handlers {
	return &Handlers{
		ledger: ledgerSvc,
		hooks:  hooks,
		pak:    pakSvc,
	}
}

func projectJSON(p *models.Project) gin.H {
	return gin.H{
		"id":               p.ID,
		"name":             p.Name,
		"description":      p.Description,
		"owner_id":         p.OwnerID,
		"status":           p.Status,
		"version":          p.Version,
		"platform":         p.Platform,
		"language":         p.Language,
		"framework":        p.Framework,
		"config_path":      p.ConfigPath,
		"deployment_count": p.DeploymentCount,
		"success_rate":     p.SuccessRate,
		"last_deployment":  p.LastDeployment,
		"created_at":       p.CreatedAt,
		"updated_at":       p.UpdatedAt,
	}
}

func deploymentJSON(d *models.Deployment) gin.H {
	return gin.H{
		"id":               d.ID,
		"project_id":       d.ProjectID,
		"user_id":          d.UserID,
		"environment":      d.Environment,
		"version":          d.Version,
		"status":           d.Status,
		"logs":             d.Logs,
		"error_message":    d.ErrorMessage,
		"started_at":       d.StartedAt,
		"completed_at":     d.CompletedAt,
		"duration_seconds": d.DurationSeconds,
		"created_at":       d.CreatedAt,
	}
}

// pagination parses page/per_page query parameters with the usual caps
func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// canAccess reports whether the user may act on the project
func canAccess(user *models.User, p *models.Project) bool {
	return user.IsAdmin || p.OwnerID == user.ID
}

// loadProject fetches the project and enforces ownership; it writes the error
// response and returns nil when access is denied or the project is missing.
func (h *Handlers) loadProject(c *gin.Context, projectID string) *models.Project {
	project, err := h.ledger.GetProject(c.Request.Context(), projectID)
	if err != nil {
		slog.Error("failed to load project", "error", err, "project_id", projectID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load project"})
		return nil
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return nil
	}
	user, _ := middleware.CurrentUser(c)
	if !canAccess(user, project) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your project"})
		return nil
	}
	return project
}

// ---------------------------------------------------------------------------
// Project CRUD
// ---------------------------------------------------------------------------

// GET /api/v1/projects?page=1&per_page=20
// Admins see every project; everyone else sees their own.
func (h *Handlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)
		user, _ := middleware.CurrentUser(c)

		var (
			projects []*models.Project
			total    int
			err      error
		)
		if user.IsAdmin {
			projects, total, err = h.ledger.ListProjects(c.Request.Context(), perPage, offset)
		} else {
			projects, total, err = h.ledger.ListProjectsByOwner(c.Request.Context(), user.ID, perPage, offset)
		}
		if err != nil {
			slog.Error("failed to list projects", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list projects"})
			return
		}

		out := make([]gin.H, 0, len(projects))
		for _, p := range projects {
			out = append(out, projectJSON(p))
		}
		c.JSON(http.StatusOK, gin.H{
			"projects": out,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// CreateProjectRequest represents a new project
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Platform    string `json:"platform"`
	Language    string `json:"language"`
	Framework   string `json:"framework"`
	Version     string `json:"version"`
	ConfigPath  string `json:"config_path"`
}

// POST /api/v1/projects
func (h *Handlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		user, _ := middleware.CurrentUser(c)
		project := &models.Project{
			Name:        req.Name,
			Description: req.Description,
			OwnerID:     user.ID,
			Status:      "active",
			Version:     req.Version,
			Platform:    req.Platform,
			Language:    req.Language,
			Framework:   req.Framework,
			ConfigPath:  req.ConfigPath,
		}
		if err := h.ledger.CreateProject(c.Request.Context(), project); err != nil {
			if errors.Is(err, ledger.ErrNameTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "A project with this name already exists"})
				return
			}
			slog.Error("failed to create project", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
			return
		}

		h.notify(c.Request.Context(), webhook.EventProjectCreated, gin.H{
			"project_id": project.ID,
			"name":       project.Name,
			"owner_id":   project.OwnerID,
		})

		c.JSON(http.StatusCreated, gin.H{"project": projectJSON(project)})
	}
}

// GET /api/v1/projects/:id
func (h *Handlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		project := h.loadProject(c, c.Param("id"))
		if project == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"project": projectJSON(project)})
	}
}

// UpdateProjectRequest carries mutable project fields; nil means unchanged
type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Version     *string `json:"version"`
	Platform    *string `json:"platform"`
	Language    *string `json:"language"`
	Framework   *string `json:"framework"`
	ConfigPath  *string `json:"config_path"`
}

// PUT /api/v1/projects/:id
func (h *Handlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		project := h.loadProject(c, c.Param("id"))
		if project == nil {
			return
		}

		if req.Name != nil {
			project.Name = *req.Name
		}
		if req.Description != nil {
			project.Description = *req.Description
		}
		if req.Status != nil {
			project.Status = *req.Status
		}
		if req.Version != nil {
			project.Version = *req.Version
		}
		if req.Platform != nil {
			project.Platform = *req.Platform
		}
		if req.Language != nil {
			project.Language = *req.Language
		}
		if req.Framework != nil {
			project.Framework = *req.Framework
		}
		if req.ConfigPath != nil {
			project.ConfigPath = *req.ConfigPath
		}

		if err := h.ledger.UpdateProject(c.Request.Context(), project); err != nil {
			if errors.Is(err, ledger.ErrNameTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "A project with this name already exists"})
				return
			}
			slog.Error("failed to update project", "error", err, "project_id", project.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"project": projectJSON(project)})
	}
}

// DELETE /api/v1/projects/:id
func (h *Handlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		project := h.loadProject(c, c.Param("id"))
		if project == nil {
			return
		}

		if err := h.ledger.DeleteProject(c.Request.Context(), project.ID); err != nil {
			slog.Error("failed to delete project", "error", err, "project_id", project.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
			return
		}

		h.notify(c.Request.Context(), webhook.EventProjectDeleted, gin.H{
			"project_id": project.ID,
			"name":       project.Name,
		})

		c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
	}
}

// ---------------------------------------------------------------------------
// Deployments
// ---------------------------------------------------------------------------

// GET /api/v1/projects/:id/deployments
func (h *Handlers) ListProjectDeployments() gin.HandlerFunc {
	return func(c *gin.Context) {
		project := h.loadProject(c, c.Param("id"))
		if project == nil {
			return
		}

		page, perPage, offset := pagination(c)
		deployments, total, err := h.ledger.ListDeploymentsByProject(c.Request.Context(), project.ID, perPage, offset)
		if err != nil {
			slog.Error("failed to list deployments", "error", err, "project_id", project.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list deployments"})
			return
		}

		out := make([]gin.H, 0, len(deployments))
		for _, d := range deployments {
			out = append(out, deploymentJSON(d))
		}
		c.JSON(http.StatusOK, gin.H{
			"deployments": out,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// DeployRequest starts a deployment run
type DeployRequest struct {
	Environment string `json:"environment" binding:"required"`
	Version     string `json:"version"`
}

// @Summary      Deploy a project
// @Description  Records a pending deployment and runs `pak deploy` in the background. Poll the returned deployment for progress.
// @Tags         Deployments
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "Project ID"
// @Param        body  body  DeployRequest  true  "Deploy parameters"
// @Success      202  {object}  map[string]interface{}  "deployment"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Router       /api/v1/projects/{id}/deploy [post]
// POST /api/v1/projects/:id/deploy
func (h *Handlers) Deploy() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeployRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		if req.Version != "" {
			if err := validation.ValidateVersion(req.Version); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		project := h.loadProject(c, c.Param("id"))
		if project == nil {
			return
		}

		user, _ := middleware.CurrentUser(c)
		deployment := &models.Deployment{
			ProjectID:   project.ID,
			UserID:      user.ID,
			Environment: req.Environment,
			Version:     req.Version,
			Status:      models.DeploymentPending,
		}
		if err := h.ledger.CreateDeployment(c.Request.Context(), deployment); err != nil {
			slog.Error("failed to record deployment", "error", err, "project_id", project.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record deployment"})
			return
		}

		h.notify(c.Request.Context(), webhook.EventDeploymentStarted, gin.H{
			"deployment_id": deployment.ID,
			"project_id":    project.ID,
			"project":       project.Name,
			"environment":   deployment.Environment,
			"version":       deployment.Version,
		})

		safego.Go(func() { h.runDeploy(project, deployment) })

		c.JSON(http.StatusAccepted, gin.H{"deployment": deploymentJSON(deployment)})
	}
}

// runDeploy drives one deployment to a terminal state. It runs detached from
// the HTTP request, so it carries its own context and logs rather than returns
// its errors.
func (h *Handlers) runDeploy(project *models.Project, deployment *models.Deployment) {
	ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
	defer cancel()

	if _, err := h.ledger.StartDeployment(ctx, deployment.ID); err != nil {
		// Raced with a cancel; leave the ledger as-is.
		slog.Warn("deployment did not start", "error", err, "deployment_id", deployment.ID)
		return
	}

	result, err := h.pak.Deploy(ctx, project.Name, deployment.Environment, deployment.Version, project.ConfigPath)

	status := models.DeploymentSuccess
	logs := ""
	errMsg := ""
	switch {
	case err != nil:
		status = models.DeploymentFailed
		errMsg = err.Error()
	case result.ExitCode != 0:
		status = models.DeploymentFailed
		logs = result.Stdout
		errMsg = result.Stderr
	default:
		logs = result.Stdout
	}

	final, err := h.ledger.CompleteDeployment(ctx, deployment.ID, status, logs, errMsg)
	if err != nil {
		slog.Error("failed to complete deployment", "error", err, "deployment_id", deployment.ID)
		return
	}

	event := webhook.EventDeploymentCompleted
	if status == models.DeploymentFailed {
		event = webhook.EventDeploymentFailed
	}
	h.notify(ctx, event, gin.H{
		"deployment_id": final.ID,
		"project_id":    project.ID,
		"project":       project.Name,
		"environment":   final.Environment,
		"version":       final.Version,
		"status":        final.Status,
		"duration":      final.DurationSeconds,
	})
}

// GET /api/v1/deployments
func (h *Handlers) ListDeployments() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)
		user, _ := middleware.CurrentUser(c)

		deployments, total, err := h.ledger.ListDeploymentsByUser(c.Request.Context(), user.ID, perPage, offset)
		if err != nil {
			slog.Error("failed to list deployments", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list deployments"})
			return
		}

		out := make([]gin.H, 0, len(deployments))
		for _, d := range deployments {
			out = append(out, deploymentJSON(d))
		}
		c.JSON(http.StatusOK, gin.H{
			"deployments": out,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// loadDeployment fetches a deployment and enforces ownership through its project
func (h *Handlers) loadDeployment(c *gin.Context, deploymentID string) *models.Deployment {
	deployment, err := h.ledger.GetDeployment(c.Request.Context(), deploymentID)
	if err != nil {
		slog.Error("failed to load deployment", "error", err, "deployment_id", deploymentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load deployment"})
		return nil
	}
	if deployment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found"})
		return nil
	}
	user, _ := middleware.CurrentUser(c)
	if !user.IsAdmin && deployment.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your deployment"})
		return nil
	}
	return deployment
}

// GET /api/v1/deployments/:id
func (h *Handlers) GetDeployment() gin.HandlerFunc {
	return func(c *gin.Context) {
		deployment := h.loadDeployment(c, c.Param("id"))
		if deployment == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"deployment": deploymentJSON(deployment)})
	}
}

// POST /api/v1/deployments/:id/cancel
func (h *Handlers) CancelDeployment() gin.HandlerFunc {
	return func(c *gin.Context) {
		deployment := h.loadDeployment(c, c.Param("id"))
		if deployment == nil {
			return
		}

		cancelled, err := h.ledger.CancelDeployment(c.Request.Context(), deployment.ID)
		if err != nil {
			if errors.Is(err, ledger.ErrInvalidTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": "Deployment is already finished"})
				return
			}
			slog.Error("failed to cancel deployment", "error", err, "deployment_id", deployment.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel deployment"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"deployment": deploymentJSON(cancelled)})
	}
}

// notify fans an event out to subscribed webhooks, logging rather than
// propagating failures; a dead receiver endpoint must never fail the API call
// that produced the event.
func (h *Handlers) notify(ctx context.Context, event string, payload gin.H) {
	report, err := h.hooks.DeliverEvent(ctx, event, payload)
	if err != nil {
		slog.Error("webhook fan-out failed", "error", err, "event", event)
		return
	}
	if report.Failed > 0 {
		slog.Warn("webhook deliveries failed", "event", event, "failed", report.Failed, "successful", report.Successful)
	}
}
